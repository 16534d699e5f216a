package stream

import (
	"github.com/bytedance/sonic"

	"github.com/wynnblevins/kanban/domain"
)

// Update is the envelope published for every board change.
type Update struct {
	BoardID string        `json:"boardId"`
	Change  domain.Change `json:"change"`
}

func EncodeUpdate(u Update) ([]byte, error) {
	return sonic.Marshal(u)
}

func DecodeUpdate(data []byte) (Update, error) {
	var u Update
	err := sonic.Unmarshal(data, &u)
	return u, err
}
