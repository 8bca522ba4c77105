package sink

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"FlowRollup/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const createFlowSummaryTableTmpl = `
CREATE TABLE IF NOT EXISTS %s (
    SummaryID       String,
    Timestamp       DateTime64(3),
    RangeStart      DateTime64(3),
    RangeEnd        DateTime64(3),
    Ranking         Int64,
    GroupedBy       String,
    GroupedByKey    String,
    AggregationType String,
    BytesIngress    Int64,
    BytesEgress     Int64,
    BytesTotal      Int64,
    ExporterForeignSource String,
    ExporterForeignID     String,
    ExporterNodeID        Int64,
    IfIndex         Int32,
    Application     String,
    HostAddress     String,
    ConversationKey String,
    Version         UInt64
) ENGINE = ReplacingMergeTree(Version)
ORDER BY SummaryID;
`

// ClickHouseSink implements sink.DocumentSink with a ReplacingMergeTree
// table per rolled-over index name: re-inserting a row with the same
// SummaryID and a newer Version supersedes the previous one once ClickHouse
// merges the parts, giving the upsert-by-ID semantics FlowSummary.ID() is
// designed to support. Tables are created lazily, one per baseIndex/strategy
// rollover period (e.g. flow_summary_2026_08_06 for the DAILY strategy).
type ClickHouseSink struct {
	conn      driver.Conn
	baseIndex string
	strategy  model.IndexStrategy

	tablesMu sync.Mutex
	tables   map[string]bool
}

// NewClickHouseSink connects to the ClickHouse instance named by dsn. Rolled-over
// tables are created on first write, not at construction time, since the
// strategy determines table names from each summary's own timestamp.
func NewClickHouseSink(dsn, baseIndex string, strategy model.IndexStrategy) (*ClickHouseSink, error) {
	opts, err := parseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	log.Println("sink: connected to ClickHouse")

	return &ClickHouseSink{conn: conn, baseIndex: baseIndex, strategy: strategy, tables: make(map[string]bool)}, nil
}

// ensureTable creates table if this sink hasn't already done so this run.
func (s *ClickHouseSink) ensureTable(table string) error {
	s.tablesMu.Lock()
	defer s.tablesMu.Unlock()
	if s.tables[table] {
		return nil
	}
	if err := s.conn.Exec(context.Background(), fmt.Sprintf(createFlowSummaryTableTmpl, table)); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	s.tables[table] = true
	return nil
}

func parseDSN(dsn string) (*clickhouse.Options, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	password, _ := u.User.Password()
	db := "default"
	if len(u.Path) > 1 {
		db = u.Path[1:]
	}
	return &clickhouse.Options{
		Addr: []string{u.Host},
		Auth: clickhouse.Auth{
			Database: db,
			Username: u.User.Username(),
			Password: password,
		},
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
	}, nil
}

// Write inserts summaries as one batch per rolled-over table, keyed by each
// summary's own timestamp under the configured IndexStrategy. The Version
// column is set to the current processing time so that, once compacted, the
// most recently written copy of a given SummaryID wins.
func (s *ClickHouseSink) Write(summaries []model.FlowSummary) error {
	if len(summaries) == 0 {
		return nil
	}

	version := uint64(time.Now().UnixNano())
	for table, group := range groupBySummaryTable(summaries, s.baseIndex, s.strategy) {
		if err := s.ensureTable(table); err != nil {
			return err
		}

		batch, err := s.conn.PrepareBatch(context.Background(), "INSERT INTO "+table)
		if err != nil {
			return fmt.Errorf("prepare batch for %s: %w", table, err)
		}

		for _, sm := range group {
			err := batch.Append(
				sm.ID(),
				time.UnixMilli(sm.Timestamp),
				time.UnixMilli(sm.RangeStartMs),
				time.UnixMilli(sm.RangeEndMs),
				sm.Ranking,
				sm.GroupedBy,
				sm.GroupedByKey,
				string(sm.AggregationType),
				sm.BytesIngress,
				sm.BytesEgress,
				sm.BytesTotal,
				sm.Exporter.ForeignSource,
				sm.Exporter.ForeignID,
				sm.Exporter.NodeID,
				sm.IfIndex,
				sm.Application,
				sm.HostAddress,
				sm.ConversationKey,
				version,
			)
			if err != nil {
				return fmt.Errorf("append summary %s: %w", sm.ID(), err)
			}
		}

		if err := batch.Send(); err != nil {
			return fmt.Errorf("send batch to %s: %w", table, err)
		}
		log.Printf("sink: wrote %d flow summaries to ClickHouse table %s", len(group), table)
	}
	return nil
}

func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}
