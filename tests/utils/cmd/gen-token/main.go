package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	testutil "github.com/wynnblevins/kanban/tests/utils"
)

func main() {
	var (
		count  = flag.Int("count", 1, "number of tokens to generate")
		prefix = flag.String("prefix", "board-user", "user ID, or the prefix of generated IDs when count > 1")
		start  = flag.Int("start", 1, "first index appended to the prefix when count > 1")
		secret = flag.String("secret", "", "signing secret; defaults to LOCAL_AUTH_SHARED_SECRET or TEST_JWT_SECRET")
		ttl    = flag.Duration("ttl", time.Hour, "token lifetime")
		output = flag.String("output", "", "file to write the tokens to as a JSON array")
	)
	flag.Parse()

	if *count < 1 || *start < 1 {
		log.Fatal("count and start must be at least 1")
	}

	tokens := make([]string, *count)
	for i := range tokens {
		userID := *prefix
		if *count > 1 {
			userID = fmt.Sprintf("%s-%d", *prefix, *start+i)
		}
		var (
			tok string
			err error
		)
		if *secret != "" {
			tok, err = testutil.SignToken([]byte(*secret), userID, *ttl)
		} else {
			tok, err = testutil.TestToken(userID)
		}
		if err != nil {
			log.Fatalf("generate token: %v", err)
		}
		tokens[i] = tok
	}

	if *output != "" {
		if err := writeTokens(*output, tokens); err != nil {
			log.Fatalf("write tokens: %v", err)
		}
	}
	fmt.Print(tokens[0])
}

func writeTokens(path string, tokens []string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := sonic.Marshal(tokens)
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}
