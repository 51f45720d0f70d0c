package neo4j

import (
	"context"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/patentsearch/evidence-engine/internal/infrastructure/monitoring/logging"
	"github.com/patentsearch/evidence-engine/pkg/errors"
)

// Config holds the optional Neo4j mirror's connection settings. An empty URI
// means the mirror is unconfigured; callers must check for that before
// calling NewDriver.
type Config struct {
	URI                          string
	Username                     string
	Password                     string
	Database                     string
	MaxConnectionPoolSize        int
	MaxConnectionLifetime        time.Duration
	ConnectionAcquisitionTimeout time.Duration
}

// Result abstracts neo4j.ResultWithContext
type Result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
	Consume(ctx context.Context) (neo4j.ResultSummary, error)
	// Add other methods as needed
}

// Transaction abstracts neo4j.ManagedTransaction
type Transaction interface {
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)
}

// internalSession abstracts neo4j.SessionWithContext
type internalSession interface {
	ExecuteRead(ctx context.Context, work func(Transaction) (any, error)) (any, error)
	ExecuteWrite(ctx context.Context, work func(Transaction) (any, error)) (any, error)
	Close(ctx context.Context) error
}

// internalDriver abstracts neo4j.DriverWithContext
type internalDriver interface {
	VerifyConnectivity(ctx context.Context) error
	NewSession(ctx context.Context, config neo4j.SessionConfig) internalSession
	Close(ctx context.Context) error
}

// stdResult implements Result
type stdResult struct {
	res neo4j.ResultWithContext
}

func (r *stdResult) Next(ctx context.Context) bool {
	return r.res.Next(ctx)
}
func (r *stdResult) Record() *neo4j.Record {
	return r.res.Record()
}
func (r *stdResult) Err() error {
	return r.res.Err()
}
func (r *stdResult) Consume(ctx context.Context) (neo4j.ResultSummary, error) {
	return r.res.Consume(ctx)
}

// stdTransaction implements Transaction
type stdTransaction struct {
	tx neo4j.ManagedTransaction
}

func (t *stdTransaction) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	res, err := t.tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return &stdResult{res: res}, nil
}

// stdSession implements internalSession
type stdSession struct {
	s neo4j.SessionWithContext
}

func (s *stdSession) ExecuteRead(ctx context.Context, work func(Transaction) (any, error)) (any, error) {
	return s.s.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return work(&stdTransaction{tx: tx})
	})
}

func (s *stdSession) ExecuteWrite(ctx context.Context, work func(Transaction) (any, error)) (any, error) {
	return s.s.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return work(&stdTransaction{tx: tx})
	})
}

func (s *stdSession) Close(ctx context.Context) error {
	return s.s.Close(ctx)
}

// stdDriver implements internalDriver
type stdDriver struct {
	d neo4j.DriverWithContext
}

func (d *stdDriver) VerifyConnectivity(ctx context.Context) error {
	return d.d.VerifyConnectivity(ctx)
}

func (d *stdDriver) NewSession(ctx context.Context, config neo4j.SessionConfig) internalSession {
	return &stdSession{s: d.d.NewSession(ctx, config)}
}

func (d *stdDriver) Close(ctx context.Context) error {
	return d.d.Close(ctx)
}

// Driver is the high-level wrapper
type Driver struct {
	driver internalDriver
	cfg    Config
	logger logging.Logger
	once   sync.Once
}

func NewDriver(cfg Config, log logging.Logger) (*Driver, error) {
	authToken := neo4j.BasicAuth(cfg.Username, cfg.Password, "")

	driver, err := neo4j.NewDriverWithContext(cfg.URI, authToken, func(c *neo4j.Config) {
		if cfg.MaxConnectionPoolSize > 0 {
			c.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
		} else {
			c.MaxConnectionPoolSize = 50
		}
		if cfg.MaxConnectionLifetime > 0 {
			c.MaxConnectionLifetime = cfg.MaxConnectionLifetime
		} else {
			c.MaxConnectionLifetime = 1 * time.Hour
		}
		if cfg.ConnectionAcquisitionTimeout > 0 {
			c.ConnectionAcquisitionTimeout = cfg.ConnectionAcquisitionTimeout
		} else {
			c.ConnectionAcquisitionTimeout = 60 * time.Second
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDBConnectionError, "failed to create neo4j driver")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, errors.Wrap(err, errors.CodeDBConnectionError, "failed to connect to neo4j")
	}

	log.Info("connected to neo4j", logging.String("uri", cfg.URI), logging.String("database", cfg.Database))

	return &Driver{
		driver: &stdDriver{d: driver},
		cfg:    cfg,
		logger: log,
	}, nil
}

func (d *Driver) Session(ctx context.Context, accessMode neo4j.AccessMode) internalSession {
	dbName := d.cfg.Database
	if dbName == "" {
		dbName = "neo4j"
	}
	return d.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: dbName,
		AccessMode:   accessMode,
	})
}

func (d *Driver) ReadSession(ctx context.Context) internalSession {
	return d.Session(ctx, neo4j.AccessModeRead)
}

func (d *Driver) WriteSession(ctx context.Context) internalSession {
	return d.Session(ctx, neo4j.AccessModeWrite)
}

func (d *Driver) ExecuteRead(ctx context.Context, work func(Transaction) (interface{}, error)) (interface{}, error) {
	session := d.ReadSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, work)
	if err != nil {
		d.logger.Error("neo4j read transaction failed", logging.Err(err))
		return nil, errors.Wrap(err, errors.CodeDBQueryError, "neo4j read failed")
	}
	return result, nil
}

func (d *Driver) ExecuteWrite(ctx context.Context, work func(Transaction) (interface{}, error)) (interface{}, error) {
	session := d.WriteSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, work)
	if err != nil {
		d.logger.Error("neo4j write transaction failed", logging.Err(err))
		return nil, errors.Wrap(err, errors.CodeDBQueryError, "neo4j write failed")
	}
	return result, nil
}

func (d *Driver) HealthCheck(ctx context.Context) error {
	if err := d.driver.VerifyConnectivity(ctx); err != nil {
		return errors.Wrap(err, errors.CodeDBConnectionError, "neo4j connectivity check failed")
	}

	// Execute simple query
	_, err := d.ExecuteRead(ctx, func(tx Transaction) (interface{}, error) {
		result, err := tx.Run(ctx, "RETURN 1 AS health", nil)
		if err != nil { return nil, err }
		if result.Next(ctx) {
			return result.Record().Values[0], nil
		}
		return nil, result.Err()
	})
	return err
}

func (d *Driver) Close() error {
	var err error
	d.once.Do(func() {
		err = d.driver.Close(context.Background())
		if err == nil {
			d.logger.Info("closed neo4j driver")
		} else {
			d.logger.Error("failed to close neo4j driver", logging.Err(err))
		}
	})
	return err
}

// Helpers

func ExtractSingleRecord[T any](ctx context.Context, result Result, mapper func(*neo4j.Record) (T, error)) (T, error) {
	var zero T
	if result.Next(ctx) {
		return mapper(result.Record())
	}
	if err := result.Err(); err != nil {
		return zero, err
	}
	return zero, errors.New(errors.CodeNotFound, "no record found")
}

func CollectRecords[T any](ctx context.Context, result Result, mapper func(*neo4j.Record) (T, error)) ([]T, error) {
	var items []T
	for result.Next(ctx) {
		item, err := mapper(result.Record())
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
