package service

import (
	"database/sql"

	"github.com/jask/recurring/internal/database/repository"
	"github.com/jask/recurring/internal/matching"
)

// Services wires every service over one database.
type Services struct {
	Accounts *repository.AccountRepo
	Settings *repository.SettingsRepo

	Series       *SeriesService
	Exceptions   *ExceptionService
	Projector    *Projector
	Realizer     *Realizer
	AutoRealizer *AutoRealizer
	Reconciler   *Reconciler
	Ingest       *IngestService
	Maintenance  *MaintenanceService
}

// New builds the services. Zero thresholds select the defaults.
func New(db *sql.DB, thresholds matching.Thresholds) *Services {
	// repositories
	accounts := repository.NewAccountRepo(db)
	series := repository.NewSeriesRepo(db)
	exceptions := repository.NewExceptionRepo(db)
	txs := repository.NewTransactionRepo(db)
	matches := repository.NewMatchRepo(db)
	patterns := repository.NewImportPatternRepo(db)

	realizer := &Realizer{DB: db, Series: series, Exceptions: exceptions, Transactions: txs}
	return &Services{
		Accounts:     accounts,
		Settings:     repository.NewSettingsRepo(db),
		Series:       &SeriesService{DB: db, Series: series, Accounts: accounts, Patterns: patterns},
		Exceptions:   &ExceptionService{DB: db, Series: series, Exceptions: exceptions, Transactions: txs},
		Projector:    &Projector{Series: series, Exceptions: exceptions, Transactions: txs},
		Realizer:     realizer,
		AutoRealizer: &AutoRealizer{Realizer: realizer, Matches: matches},
		Reconciler: &Reconciler{
			DB:           db,
			Realizer:     realizer,
			Transactions: txs,
			Matches:      matches,
			Patterns:     patterns,
			Thresholds:   thresholds,
		},
		Ingest:      &IngestService{Transactions: txs, Accounts: accounts},
		Maintenance: &MaintenanceService{DB: db},
	}
}
