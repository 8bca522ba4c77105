package sink

import (
	"fmt"
	"log"
	"sync"

	"FlowRollup/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// flowSummaryRow is the GORM-mapped table row for a FlowSummary. The
// SummaryID column carries a unique index so clause.OnConflict can target it
// directly.
type flowSummaryRow struct {
	SummaryID       string `gorm:"primaryKey"`
	Timestamp       int64  `gorm:"index"`
	RangeStartMs    int64
	RangeEndMs      int64
	Ranking         int64
	GroupedBy       string `gorm:"index"`
	GroupedByKey    string `gorm:"index"`
	AggregationType string
	BytesIngress    int64
	BytesEgress     int64
	BytesTotal      int64

	ExporterForeignSource string
	ExporterForeignID     string
	ExporterNodeID        int64
	IfIndex               int32

	Application     string
	HostAddress     string
	ConversationKey string
}

// TableName is the fallback used only by AutoMigrate's struct reflection; all
// actual reads and writes go through SQLiteSink's own rolled-over table name
// via db.Table(...).
func (flowSummaryRow) TableName() string { return "flow_summary" }

func toRow(s model.FlowSummary) flowSummaryRow {
	return flowSummaryRow{
		SummaryID:             s.ID(),
		Timestamp:             s.Timestamp,
		RangeStartMs:          s.RangeStartMs,
		RangeEndMs:            s.RangeEndMs,
		Ranking:               s.Ranking,
		GroupedBy:             s.GroupedBy,
		GroupedByKey:          s.GroupedByKey,
		AggregationType:       string(s.AggregationType),
		BytesIngress:          s.BytesIngress,
		BytesEgress:           s.BytesEgress,
		BytesTotal:            s.BytesTotal,
		ExporterForeignSource: s.Exporter.ForeignSource,
		ExporterForeignID:     s.Exporter.ForeignID,
		ExporterNodeID:        s.Exporter.NodeID,
		IfIndex:               s.IfIndex,
		Application:           s.Application,
		HostAddress:           s.HostAddress,
		ConversationKey:       s.ConversationKey,
	}
}

// SQLiteSink implements sink.DocumentSink with GORM over SQLite, the
// development and test substitute for the ClickHouse sink. Upserts go
// through clause.OnConflict so a re-fired late pane overwrites its earlier
// row instead of violating the SummaryID primary key. Each summary lands in
// a table named for its own timestamp under the configured IndexStrategy,
// created lazily on first write.
type SQLiteSink struct {
	db        *gorm.DB
	baseIndex string
	strategy  model.IndexStrategy

	tablesMu sync.Mutex
	tables   map[string]bool
}

// NewSQLiteSink opens (or creates) the SQLite database at path.
func NewSQLiteSink(path, baseIndex string, strategy model.IndexStrategy) (*SQLiteSink, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.Exec("PRAGMA journal_mode=WAL")
	sqlDB.Exec("PRAGMA synchronous=NORMAL")
	log.Println("sink: connected to SQLite")

	return &SQLiteSink{db: db, baseIndex: baseIndex, strategy: strategy, tables: make(map[string]bool)}, nil
}

// ensureTable migrates table if this sink hasn't already done so this run.
func (s *SQLiteSink) ensureTable(table string) error {
	s.tablesMu.Lock()
	defer s.tablesMu.Unlock()
	if s.tables[table] {
		return nil
	}
	if err := s.db.Table(table).AutoMigrate(&flowSummaryRow{}); err != nil {
		return fmt.Errorf("automigrate %s: %w", table, err)
	}
	s.tables[table] = true
	return nil
}

// Write upserts each summary by SummaryID into its rolled-over table,
// overwriting every non-key column on conflict.
func (s *SQLiteSink) Write(summaries []model.FlowSummary) error {
	if len(summaries) == 0 {
		return nil
	}

	for table, group := range groupBySummaryTable(summaries, s.baseIndex, s.strategy) {
		if err := s.ensureTable(table); err != nil {
			return err
		}

		rows := make([]flowSummaryRow, len(group))
		for i, sm := range group {
			rows[i] = toRow(sm)
		}

		err := s.db.Table(table).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "summary_id"}},
			UpdateAll: true,
		}).CreateInBatches(rows, 200).Error
		if err != nil {
			return fmt.Errorf("upsert flow summaries into %s: %w", table, err)
		}
		log.Printf("sink: upserted %d flow summaries into SQLite table %s", len(rows), table)
	}
	return nil
}

func (s *SQLiteSink) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
