package storage

import (
	"errors"
	"reflect"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
)

func TestDecodeTemplateEntity(t *testing.T) {
	data := []byte(`{"odata.etag":"W/\"1\"","PartitionKey":"scrum","RowKey":"0002","Timestamp":"2024-01-01T00:00:00Z","Title":"Review"}`)
	ent, err := decodeTemplateEntity(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ent.PartitionKey != "scrum" || ent.RowKey != "0002" || ent.Title != "Review" {
		t.Fatalf("unexpected entity %+v", ent)
	}
	if _, err := decodeTemplateEntity([]byte("{")); err == nil {
		t.Fatalf("expected error for malformed entity")
	}
}

func TestTemplateTitlesOrderByRowKey(t *testing.T) {
	rows := []templateEntity{
		{RowKey: templateRowKey(10), Title: "Archive"},
		{RowKey: templateRowKey(0), Title: "Backlog"},
		{RowKey: templateRowKey(2), Title: "Doing"},
	}
	got, err := templateTitles("scrum", rows)
	if err != nil {
		t.Fatalf("titles: %v", err)
	}
	if want := []string{"Backlog", "Doing", "Archive"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("titles = %v, want %v", got, want)
	}

	if _, err := templateTitles("missing", nil); !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}
}

func TestTemplateRowKey(t *testing.T) {
	if got := templateRowKey(7); got != "0007" {
		t.Fatalf("templateRowKey(7) = %q", got)
	}
}

func TestAlreadyExists(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
		want bool
	}{
		{name: "table exists", err: &azcore.ResponseError{ErrorCode: string(aztables.TableAlreadyExists)}, code: string(aztables.TableAlreadyExists), want: true},
		{name: "queue exists", err: &azcore.ResponseError{ErrorCode: "QueueAlreadyExists"}, code: "QueueAlreadyExists", want: true},
		{name: "other code", err: &azcore.ResponseError{ErrorCode: "AuthorizationFailure"}, code: "QueueAlreadyExists"},
		{name: "plain error", err: errors.New("boom"), code: "QueueAlreadyExists"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := alreadyExists(tt.err, tt.code); got != tt.want {
				t.Fatalf("alreadyExists() = %v, want %v", got, tt.want)
			}
		})
	}
}
