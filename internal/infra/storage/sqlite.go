package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/SandroAugusto/school-of-solana/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// marketRow stores the fixed account layout plus the columns we filter on.
type marketRow struct {
	Address   string `gorm:"primaryKey;size:64"`
	Authority string `gorm:"index;size:64"`
	Oracle    string `gorm:"index;size:64"`
	Status    uint8  `gorm:"index"`
	EndTime   int64  `gorm:"index"`
	Data      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (marketRow) TableName() string { return "markets" }

// betRow enforces one bet per (market, bettor) with a unique index.
type betRow struct {
	Address   string `gorm:"primaryKey;size:64"`
	Market    string `gorm:"uniqueIndex:idx_bets_market_bettor;size:64"`
	Bettor    string `gorm:"uniqueIndex:idx_bets_market_bettor;size:64"`
	Data      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (betRow) TableName() string { return "bets" }

type journalRow struct {
	Seq     uint64 `gorm:"primaryKey;autoIncrement:false"`
	ID      string `gorm:"uniqueIndex;size:36"`
	Type    string `gorm:"index;size:32"`
	Market  string `gorm:"index;size:64"`
	At      int64
	Payload []byte
}

func (journalRow) TableName() string { return "journal_events" }

// Storage is the SQLite-backed RecordStore and Journal.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (and migrates) the SQLite database at path.
// An empty path resolves to the per-user data directory.
func NewStorage(path string) (*Storage, error) {
	return openStorage(path, log.New(os.Stderr, "", log.LstdFlags))
}

// newGormLogger reports slow queries and real errors to w. Missed lookups are
// ordinary NotFound results and stay quiet.
func newGormLogger(w logger.Writer) logger.Interface {
	return logger.New(w, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

func openStorage(path string, w logger.Writer) (*Storage, error) {
	if path == "" {
		var err error
		path, err = getDBPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve DB path: %w", err)
		}
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go). WAL lets API reads run beside the sequencer's writes.
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: newGormLogger(w),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return newStorage(db)
}

func newStorage(db *gorm.DB) (*Storage, error) {
	if err := db.AutoMigrate(&marketRow{}, &betRow{}, &journalRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Storage{db: db}, nil
}

// getDBPath resolves the database file path based on OS
func getDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "PredictionMarket", "data", "markets.db"), nil
}

// Close releases the underlying connection pool.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Record Operations
// ======================================================================================

// Update runs fn inside a database transaction; any error rolls it back.
func (s *Storage) Update(ctx context.Context, fn func(tx domain.RecordTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&sqliteTx{db: tx})
	})
}

// View runs fn with a read-only transaction.
func (s *Storage) View(ctx context.Context, fn func(tx domain.RecordTx) error) error {
	return fn(&sqliteTx{db: s.db.WithContext(ctx), readOnly: true})
}

// ListMarkets returns all markets ordered by end time.
func (s *Storage) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	var rows []marketRow
	if err := s.db.WithContext(ctx).Order("end_time, address").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}

	markets := make([]domain.Market, 0, len(rows))
	for _, row := range rows {
		m, err := row.decode()
		if err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}
	return markets, nil
}

// ListBets returns the bets of one market ordered by bettor.
func (s *Storage) ListBets(ctx context.Context, market domain.Identity) ([]domain.Bet, error) {
	var rows []betRow
	err := s.db.WithContext(ctx).Where("market = ?", market.String()).Order("bettor").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list bets: %w", err)
	}

	bets := make([]domain.Bet, 0, len(rows))
	for _, row := range rows {
		b, err := row.decode()
		if err != nil {
			return nil, err
		}
		bets = append(bets, b)
	}
	return bets, nil
}

// ======================================================================================
// Journal Operations
// ======================================================================================

// AppendEvent appends e. Its sequence must directly follow the last one.
func (s *Storage) AppendEvent(ctx context.Context, e domain.JournalEntry) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		last, err := lastSeq(tx)
		if err != nil {
			return err
		}
		if e.Seq != last+1 {
			return errJournalGap(last, e.Seq)
		}
		row := journalRow{
			Seq:     e.Seq,
			ID:      e.ID,
			Type:    e.Type,
			Market:  e.Market.String(),
			At:      e.At,
			Payload: e.Payload,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("append event %d: %w", e.Seq, err)
		}
		return nil
	})
}

// ListEvents returns up to limit entries with Seq > afterSeq. limit <= 0 means all.
func (s *Storage) ListEvents(ctx context.Context, afterSeq uint64, limit int) ([]domain.JournalEntry, error) {
	q := s.db.WithContext(ctx).Where("seq > ?", afterSeq).Order("seq")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []journalRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	entries := make([]domain.JournalEntry, 0, len(rows))
	for _, row := range rows {
		market, err := domain.ParseIdentity(row.Market)
		if err != nil {
			return nil, fmt.Errorf("list events: seq %d: %w", row.Seq, err)
		}
		entries = append(entries, domain.JournalEntry{
			Seq:     row.Seq,
			ID:      row.ID,
			Type:    row.Type,
			Market:  market,
			At:      row.At,
			Payload: row.Payload,
		})
	}
	return entries, nil
}

// LastSeq returns the highest journal sequence, 0 when empty.
func (s *Storage) LastSeq(ctx context.Context) (uint64, error) {
	return lastSeq(s.db.WithContext(ctx))
}

func lastSeq(db *gorm.DB) (uint64, error) {
	var last int64
	if err := db.Model(&journalRow{}).Select("COALESCE(MAX(seq), 0)").Row().Scan(&last); err != nil {
		return 0, fmt.Errorf("journal last seq: %w", err)
	}
	return uint64(last), nil
}

func errJournalGap(last, got uint64) error {
	return fmt.Errorf("journal gap: last %d, got %d", last, got)
}

// ======================================================================================
// Transaction
// ======================================================================================

type sqliteTx struct {
	db       *gorm.DB
	readOnly bool
}

func (tx *sqliteTx) GetMarket(key domain.Identity) (domain.Market, error) {
	var row marketRow
	err := tx.db.First(&row, "address = ?", key.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Market{}, domain.ErrMarketNotFound
	}
	if err != nil {
		return domain.Market{}, fmt.Errorf("get market: %w", err)
	}
	return row.decode()
}

func (tx *sqliteTx) InsertMarket(m domain.Market) error {
	if tx.readOnly {
		return domain.ErrReadOnly
	}
	if exists, err := tx.exists(&marketRow{}, "address = ?", m.Key.String()); err != nil || exists {
		if err != nil {
			return err
		}
		return domain.ErrAlreadyExists
	}
	row, err := encodeMarketRow(m)
	if err != nil {
		return err
	}
	if err := tx.db.Create(&row).Error; err != nil {
		return translate("insert market", err)
	}
	return nil
}

func (tx *sqliteTx) SaveMarket(m domain.Market) error {
	if tx.readOnly {
		return domain.ErrReadOnly
	}
	row, err := encodeMarketRow(m)
	if err != nil {
		return err
	}
	res := tx.db.Model(&marketRow{}).Where("address = ?", row.Address).Updates(map[string]any{
		"status":     row.Status,
		"data":       row.Data,
		"updated_at": time.Now(),
	})
	if res.Error != nil {
		return fmt.Errorf("save market: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrMarketNotFound
	}
	return nil
}

func (tx *sqliteTx) GetBet(key domain.Identity) (domain.Bet, error) {
	var row betRow
	err := tx.db.First(&row, "address = ?", key.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Bet{}, domain.ErrBetNotFound
	}
	if err != nil {
		return domain.Bet{}, fmt.Errorf("get bet: %w", err)
	}
	return row.decode()
}

func (tx *sqliteTx) InsertBet(b domain.Bet) error {
	if tx.readOnly {
		return domain.ErrReadOnly
	}
	exists, err := tx.exists(&betRow{}, "address = ? OR (market = ? AND bettor = ?)",
		b.Key.String(), b.Market.String(), b.Bettor.String())
	if err != nil {
		return err
	}
	if exists {
		return domain.ErrAlreadyExists
	}
	row := betRow{
		Address: b.Key.String(),
		Market:  b.Market.String(),
		Bettor:  b.Bettor.String(),
		Data:    domain.EncodeBet(b),
	}
	if err := tx.db.Create(&row).Error; err != nil {
		return translate("insert bet", err)
	}
	return nil
}

func (tx *sqliteTx) SaveBet(b domain.Bet) error {
	if tx.readOnly {
		return domain.ErrReadOnly
	}
	res := tx.db.Model(&betRow{}).Where("address = ?", b.Key.String()).Updates(map[string]any{
		"data":       domain.EncodeBet(b),
		"updated_at": time.Now(),
	})
	if res.Error != nil {
		return fmt.Errorf("save bet: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrBetNotFound
	}
	return nil
}

func (tx *sqliteTx) exists(model any, query string, args ...any) (bool, error) {
	var count int64
	if err := tx.db.Model(model).Where(query, args...).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check existing record: %w", err)
	}
	return count > 0, nil
}

func translate(op string, err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrAlreadyExists
	}
	return fmt.Errorf("%s: %w", op, err)
}

func encodeMarketRow(m domain.Market) (marketRow, error) {
	data, err := domain.EncodeMarket(m)
	if err != nil {
		return marketRow{}, err
	}
	return marketRow{
		Address:   m.Key.String(),
		Authority: m.Authority.String(),
		Oracle:    m.Oracle.String(),
		Status:    uint8(m.Status),
		EndTime:   m.EndTime,
		Data:      data,
	}, nil
}

func (r marketRow) decode() (domain.Market, error) {
	m, err := domain.DecodeMarket(r.Data)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market %s: %w", r.Address, err)
	}
	if m.Key, err = domain.ParseIdentity(r.Address); err != nil {
		return domain.Market{}, err
	}
	return m, nil
}

func (r betRow) decode() (domain.Bet, error) {
	b, err := domain.DecodeBet(r.Data)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("bet %s: %w", r.Address, err)
	}
	if b.Key, err = domain.ParseIdentity(r.Address); err != nil {
		return domain.Bet{}, err
	}
	return b, nil
}
