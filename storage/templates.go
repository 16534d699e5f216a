package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"

	"github.com/wynnblevins/kanban/domain"
)

// DefaultTemplate names the built-in column layout.
const DefaultTemplate = "default"

// ErrTemplateNotFound is returned when a template has no rows.
var ErrTemplateNotFound = errors.New("template not found")

// TemplateStore reads and writes board templates. Each row of the table is
// one column: PartitionKey is the template name, RowKey the zero padded
// position and Title the column title.
type TemplateStore struct {
	table *aztables.Client
}

type templateEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Title        string `json:"Title"`
}

// NewTemplateStore creates a TemplateStore from the given connection string.
func NewTemplateStore(connStr, table string) (*TemplateStore, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &TemplateStore{table: svc.NewClient(table)}, nil
}

// Columns returns the column titles of the named template in position order.
func (s *TemplateStore) Columns(ctx context.Context, name string) ([]string, error) {
	filter := "PartitionKey eq '" + strings.ReplaceAll(name, "'", "''") + "'"
	pager := s.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	rows := []templateEntity{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			row, err := decodeTemplateEntity(e)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
	}
	return templateTitles(name, rows)
}

// Save replaces the rows of the named template with titles.
func (s *TemplateStore) Save(ctx context.Context, name string, titles []string) error {
	for i, title := range titles {
		payload, err := sonic.Marshal(templateEntity{PartitionKey: name, RowKey: templateRowKey(i), Title: title})
		if err != nil {
			return err
		}
		if _, err := s.table.UpsertEntity(ctx, payload, nil); err != nil {
			return fmt.Errorf("save template %s row %d: %w", name, i, err)
		}
	}
	return nil
}

// SeedDefault writes the built-in template unless it already exists.
func (s *TemplateStore) SeedDefault(ctx context.Context) error {
	if _, err := s.Columns(ctx, DefaultTemplate); err == nil {
		return nil
	} else if !errors.Is(err, ErrTemplateNotFound) {
		return err
	}
	return s.Save(ctx, DefaultTemplate, domain.DefaultColumnTitles)
}

func decodeTemplateEntity(data []byte) (templateEntity, error) {
	var ent templateEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return templateEntity{}, err
	}
	return ent, nil
}

func templateTitles(name string, rows []templateEntity) ([]string, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	slices.SortFunc(rows, func(a, b templateEntity) int { return strings.Compare(a.RowKey, b.RowKey) })
	titles := make([]string, 0, len(rows))
	for _, r := range rows {
		titles = append(titles, r.Title)
	}
	return titles, nil
}

func templateRowKey(i int) string {
	return fmt.Sprintf("%04d", i)
}
