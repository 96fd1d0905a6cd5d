package slavie

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"log/slog"
	"sync"
)

var errStoreNotConnected = errors.New("store not connected")

// Store owns the relationship database connection. It's created with
// NewStore, opened with [Store.Connect] and released with [Store.Close],
// and shared by the engine, the Discord command handlers and the API.
type Store struct {
	databaseType  string
	dsn           string
	config        *Config
	logger        *slog.Logger
	db            DBI
	mu            sync.RWMutex
	ownConnection bool
}

// NewStore returns an unconnected Store for the database configured
// in config.
func NewStore(config *Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		databaseType:  config.DatabaseType,
		dsn:           config.Database,
		config:        config,
		logger:        logger.With(loggerNameKey, logComponentStore),
		ownConnection: true,
	}
}

// NewStoreWithDB returns a Store using an existing connection. Close
// will not close db.
func NewStoreWithDB(db DBI, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		logger: logger.With(loggerNameKey, logComponentStore),
	}
}

// Connect opens the database, applies connection settings and
// migrates the schema, including the unique indexes the engine relies
// on. Calling Connect on a connected Store is a no-op.
func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	handler := newLogHandler(s.config.DatabaseLogLevel)
	gormLogger := newGORMLogger(handler, s.config.DatabaseSlowThreshold)

	s.logger.InfoContext(
		ctx,
		"connecting to database",
		"database_type", s.databaseType,
	)
	db, err := getDB(s.databaseType, s.dsn, gormLogger)
	if err != nil {
		return fmt.Errorf("error opening database: %w", err)
	}
	if err = configureDB(ctx, s.databaseType, db); err != nil {
		return fmt.Errorf("error configuring database: %w", err)
	}
	if err = migrate(ctx, db); err != nil {
		return fmt.Errorf("error migrating database: %w", err)
	}

	s.db = NewDatabase(
		db,
		s.logger,
		s.databaseType != dbTypeSQLite,
	)
	return nil
}

// Close closes the underlying connection pool, if the Store opened it
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	db := s.db
	s.db = nil
	if !s.ownConnection {
		return nil
	}
	sqlDB, err := db.DB().DB()
	if err != nil {
		return err
	}
	s.logger.Info("closing database connection")
	return sqlDB.Close()
}

// DB returns the write wrapper for the connection, or nil if the
// store isn't connected.
func (s *Store) DB() DBI {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

func (s *Store) conn() (DBI, error) {
	db := s.DB()
	if db == nil {
		return nil, errStoreNotConnected
	}
	return db, nil
}

// reader returns a gorm session for reads, bound to ctx
func (s *Store) reader(ctx context.Context) (*gorm.DB, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	return db.DB().WithContext(ctx), nil
}

// newCustomID returns an identifier for a proposal's buttons
func newCustomID() string {
	return uuid.NewString()
}

// first returns the first record matching the query, or nil if there
// are none.
func first[T any](db *gorm.DB, query any, args ...any) (*T, error) {
	var v T
	err := db.Where(query, args...).Take(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

// FindMarriage returns the marriage record for userID, or nil if they
// aren't married.
func (s *Store) FindMarriage(ctx context.Context, userID string) (*Marriage, error) {
	db, err := s.reader(ctx)
	if err != nil {
		return nil, err
	}
	return first[Marriage](db, columnMarriageUserID+" = ?", userID)
}

// FindProposalByProposer returns the proposal made by proposerID, or nil
func (s *Store) FindProposalByProposer(
	ctx context.Context,
	proposerID string,
) (*Proposal, error) {
	db, err := s.reader(ctx)
	if err != nil {
		return nil, err
	}
	return first[Proposal](db, columnProposalProposerID+" = ?", proposerID)
}

// FindProposalByRecipient returns the proposal made to recipientID, or nil
func (s *Store) FindProposalByRecipient(
	ctx context.Context,
	recipientID string,
) (*Proposal, error) {
	db, err := s.reader(ctx)
	if err != nil {
		return nil, err
	}
	return first[Proposal](db, columnProposalRecipientID+" = ?", recipientID)
}

// FindProposalByCustomID returns the proposal for a button's custom ID, or nil
func (s *Store) FindProposalByCustomID(
	ctx context.Context,
	customID string,
) (*Proposal, error) {
	db, err := s.reader(ctx)
	if err != nil {
		return nil, err
	}
	return first[Proposal](db, columnProposalCustomID+" = ?", customID)
}

// FindAdoption returns the adoption record for childID, or nil
func (s *Store) FindAdoption(ctx context.Context, childID string) (*Adoption, error) {
	db, err := s.reader(ctx)
	if err != nil {
		return nil, err
	}
	return first[Adoption](db, columnAdoptionUserID+" = ?", childID)
}

// FindPendingAdoption returns the pending adoption from adopterID to
// adopteeID, or nil
func (s *Store) FindPendingAdoption(
	ctx context.Context,
	adopterID string,
	adopteeID string,
) (*PendingAdoption, error) {
	db, err := s.reader(ctx)
	if err != nil {
		return nil, err
	}
	return first[PendingAdoption](
		db,
		columnPendingAdoptionAdopterID+" = ? AND "+columnPendingAdoptionAdopteeID+" = ?",
		adopterID,
		adopteeID,
	)
}

// Children returns the adoptions where parentID is either parent
func (s *Store) Children(ctx context.Context, parentID string) ([]Adoption, error) {
	db, err := s.reader(ctx)
	if err != nil {
		return nil, err
	}
	var children []Adoption
	err = db.Where(
		columnAdoptionAdoptedBy+" = ? OR "+columnAdoptionSpouseID+" = ?",
		parentID,
		parentID,
	).Order("created_at asc").Find(&children).Error
	return children, err
}

// Marriages returns marriage records, ordered by ID. Each marriage
// appears twice, once for each spouse.
func (s *Store) Marriages(ctx context.Context, page Pagination) ([]Marriage, error) {
	db, err := s.reader(ctx)
	if err != nil {
		return nil, err
	}
	var marriages []Marriage
	err = page.apply(db).Find(&marriages).Error
	return marriages, err
}

// Proposals returns pending marriage proposals, ordered by ID
func (s *Store) Proposals(ctx context.Context, page Pagination) ([]Proposal, error) {
	db, err := s.reader(ctx)
	if err != nil {
		return nil, err
	}
	var proposals []Proposal
	err = page.apply(db).Find(&proposals).Error
	return proposals, err
}

// Adoptions returns adoption records, ordered by ID
func (s *Store) Adoptions(ctx context.Context, page Pagination) ([]Adoption, error) {
	db, err := s.reader(ctx)
	if err != nil {
		return nil, err
	}
	var adoptions []Adoption
	err = page.apply(db).Find(&adoptions).Error
	return adoptions, err
}

// PendingAdoptions returns pending adoption offers, ordered by ID
func (s *Store) PendingAdoptions(
	ctx context.Context,
	page Pagination,
) ([]PendingAdoption, error) {
	db, err := s.reader(ctx)
	if err != nil {
		return nil, err
	}
	var pending []PendingAdoption
	err = page.apply(db).Find(&pending).Error
	return pending, err
}

const defaultPageLimit = 25

// Sort is the order in which paginated results are returned
type Sort string

const (
	Ascending  Sort = "asc"
	Descending Sort = "desc"
)

// Pagination represents the pagination parameters for list queries.
//
// Fields:
//   - Limit: The maximum number of records to return.
//   - Order: The order in which to return the records (ascending or descending).
//   - Offset: The number of records to skip before starting to return records.
type Pagination struct {
	Limit  int  `form:"limit" binding:"omitempty,min=1,max=100"`
	Order  Sort `form:"order" binding:"omitempty,oneof=asc desc"`
	Offset int  `form:"offset" binding:"omitempty,min=0"`
}

// apply adds limit, offset and ID ordering to db, filling in defaults
// for unset fields.
func (p Pagination) apply(db *gorm.DB) *gorm.DB {
	limit := p.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	order := "id asc"
	if p.Order == Descending {
		order = "id desc"
	}
	return db.Order(order).Limit(limit).Offset(p.Offset)
}
