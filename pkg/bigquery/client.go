package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/cartsplit-backend/pkg/config"
	"github.com/angelmondragon/cartsplit-backend/pkg/gcp"
	"github.com/angelmondragon/cartsplit-backend/pkg/logger"
)

const metadataTimeout = 10 * time.Second

var ErrNotInitialized = errors.New("bigquery: client not initialized")

// Client is a BigQuery client bound to one dataset.
type Client struct {
	bq            *bigquery.Client
	dataset       *bigquery.Dataset
	createMissing bool
	logg          *logger.Logger
}

// NewClient connects and checks the dataset exists. Tables are checked by
// EnsureTable once the caller knows their row schema.
func NewClient(ctx context.Context, gcpCfg config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcpCfg.ProjectID)
	dataset := strings.TrimSpace(cfg.Dataset)
	if project == "" || dataset == "" {
		return nil, errors.New("bigquery: project id and dataset are required")
	}
	bq, err := bigquery.NewClient(ctx, project, gcp.ClientOptions(gcpCfg)...)
	if err != nil {
		return nil, fmt.Errorf("bigquery: connect: %w", err)
	}
	c := &Client{bq: bq, dataset: bq.Dataset(dataset), createMissing: cfg.CreateMissing, logg: logg}
	if err := c.Ping(ctx); err != nil {
		_ = bq.Close()
		return nil, err
	}
	return c, nil
}

// Ping reads the dataset metadata.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return ErrNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()
	if _, err := c.dataset.Metadata(ctx); err != nil {
		return fmt.Errorf("bigquery: dataset %s: %w", c.dataset.DatasetID, err)
	}
	return nil
}

// EnsureTable checks that table exists. When it does not and CreateMissing is
// set, the table is created with the schema inferred from row and day
// partitioning on partitionField.
func (c *Client) EnsureTable(ctx context.Context, table string, row any, partitionField string) error {
	if c == nil || c.dataset == nil {
		return ErrNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	ref := c.dataset.Table(table)
	_, err := ref.Metadata(ctx)
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("bigquery: table %s: %w", table, err)
	}
	if !c.createMissing {
		return fmt.Errorf("bigquery: table %s does not exist", table)
	}

	schema, err := bigquery.InferSchema(row)
	if err != nil {
		return fmt.Errorf("bigquery: infer %s schema: %w", table, err)
	}
	meta := &bigquery.TableMetadata{Schema: schema}
	if partitionField != "" {
		meta.TimePartitioning = &bigquery.TimePartitioning{Type: bigquery.DayPartitioningType, Field: partitionField}
	}
	if err := ref.Create(ctx, meta); err != nil {
		return fmt.Errorf("bigquery: create %s: %w", table, err)
	}
	if c.logg != nil {
		c.logg.Info(c.logg.WithField(ctx, "table", table), "bigquery table created")
	}
	return nil
}

// Put streams rows into table. Rows carrying an insert id are deduplicated by
// BigQuery on a best effort basis.
func (c *Client) Put(ctx context.Context, table string, rows []bigquery.ValueSaver) error {
	if c == nil || c.dataset == nil {
		return ErrNotInitialized
	}
	if len(rows) == 0 {
		return nil
	}
	return c.dataset.Table(table).Inserter().Put(ctx, rows)
}

func (c *Client) Close() error {
	if c == nil || c.bq == nil {
		return nil
	}
	return c.bq.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
