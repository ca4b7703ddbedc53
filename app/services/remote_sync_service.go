package services

import (
	"context"
	"time"

	"DistroApp/app/database"
	"DistroApp/app/models"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize caps the rows sent in one remote statement
const DefaultBatchSize = 100

// SyncStatus separates "never tried" from "tried"
type SyncStatus string

const (
	SyncNotAttempted SyncStatus = "not_attempted"
	SyncSucceeded    SyncStatus = "succeeded"
	SyncFailed       SyncStatus = "failed"
)

// SyncResult is the outcome of syncing one entity type
type SyncResult struct {
	Status      SyncStatus `json:"status"`
	Success     bool       `json:"success"`
	SyncedCount int        `json:"syncedCount"`
	ErrorCount  int        `json:"errorCount"`
}

// Attempted reports whether any remote write was tried
func (r SyncResult) Attempted() bool {
	return r.Status != SyncNotAttempted
}

func notAttempted() SyncResult {
	return SyncResult{Status: SyncNotAttempted}
}

func resultFrom(synced, failed int) SyncResult {
	if failed > 0 {
		return SyncResult{Status: SyncFailed, SyncedCount: synced, ErrorCount: failed}
	}
	return SyncResult{Status: SyncSucceeded, Success: true, SyncedCount: synced}
}

// SyncReport holds one result per entity type
type SyncReport map[models.Collection]SyncResult

func notAttemptedReport() SyncReport {
	report := make(SyncReport, len(models.AllCollections))
	for _, c := range models.AllCollections {
		report[c] = notAttempted()
	}
	return report
}

// Totals sums synced and failed rows across entity types
func (r SyncReport) Totals() (synced, failed int) {
	results := lo.Values(r)
	synced = lo.SumBy(results, func(res SyncResult) int { return res.SyncedCount })
	failed = lo.SumBy(results, func(res SyncResult) int { return res.ErrorCount })
	return synced, failed
}

// Status folds the per-entity results into one
func (r SyncReport) Status() SyncStatus {
	attempted := false
	for _, res := range r {
		if res.Status == SyncFailed {
			return SyncFailed
		}
		if res.Attempted() {
			attempted = true
		}
	}
	if !attempted {
		return SyncNotAttempted
	}
	return SyncSucceeded
}

// RemoteSyncOptions tunes a RemoteSyncService
type RemoteSyncOptions struct {
	BatchSize    int
	RowID        RowIDFunc
	ProbeTimeout time.Duration
	Metrics      *SyncMetrics
	Logger       *zap.Logger
}

// RemoteSyncService pushes the local snapshot to the remote relational store
type RemoteSyncService struct {
	client       RemoteClient
	batchSize    int
	rowID        RowIDFunc
	probeTimeout time.Duration
	metrics      *SyncMetrics
	logger       *zap.Logger
}

// NewRemoteSyncService creates a sync service. A nil client means no remote is
// configured and every operation reports not attempted.
func NewRemoteSyncService(client RemoteClient, opts RemoteSyncOptions) *RemoteSyncService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.RowID == nil {
		opts.RowID, _ = NewKeyedRowID(nil)
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &RemoteSyncService{
		client:       client,
		batchSize:    opts.BatchSize,
		rowID:        opts.RowID,
		probeTimeout: opts.ProbeTimeout,
		metrics:      opts.Metrics,
		logger:       opts.Logger.Named("remote-sync"),
	}
}

// CheckConnection probes the remote store. It never fails loudly.
func (s *RemoteSyncService) CheckConnection(ctx context.Context) bool {
	if s.client == nil {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()

	if err := s.client.Probe(probeCtx); err != nil {
		s.logger.Debug("remote store unreachable", remoteErrorFields(err)...)
		s.metrics.observeProbe(false)
		return false
	}
	s.metrics.observeProbe(true)
	return true
}

// upsertInBatches sends rows in fixed-size batches. A rejected batch counts every
// row in it as failed and the remaining batches still run.
func upsertInBatches[T any](ctx context.Context, s *RemoteSyncService, table string, rows []T) (synced, failed int) {
	for i, batch := range lo.Chunk(rows, s.batchSize) {
		if err := s.client.Upsert(ctx, table, batch); err != nil {
			fields := append([]zap.Field{
				zap.String("table", table),
				zap.Int("batch", i+1),
				zap.Int("rows", len(batch)),
			}, remoteErrorFields(err)...)
			s.logger.Error("batch upsert failed", fields...)
			failed += len(batch)
			continue
		}
		synced += len(batch)
	}
	return synced, failed
}

func (s *RemoteSyncService) finish(entity models.Collection, result SyncResult) SyncResult {
	s.metrics.observeEntity(entity, result)
	s.logger.Debug("entity synced",
		zap.String("entity", entity.String()),
		zap.String("status", string(result.Status)),
		zap.Int("synced", result.SyncedCount),
		zap.Int("failed", result.ErrorCount))
	return result
}

// SyncProducts upserts every product by id
func (s *RemoteSyncService) SyncProducts(ctx context.Context, products []models.Product) SyncResult {
	if !s.CheckConnection(ctx) {
		return notAttempted()
	}

	rows := lo.Map(products, func(p models.Product, _ int) database.RemoteProduct {
		return database.RemoteProduct{ID: p.ID, Name: p.Name, Price: p.Price}
	})
	synced, failed := upsertInBatches(ctx, s, database.RemoteTableProducts, rows)
	return s.finish(models.CollectionProducts, resultFrom(synced, failed))
}

// SyncRoutes upserts every route by id
func (s *RemoteSyncService) SyncRoutes(ctx context.Context, routes []models.Route) SyncResult {
	if !s.CheckConnection(ctx) {
		return notAttempted()
	}

	rows := lo.Map(routes, func(r models.Route, _ int) database.RemoteRoute {
		return database.RemoteRoute{ID: r.ID, Name: r.Name}
	})
	synced, failed := upsertInBatches(ctx, s, database.RemoteTableRoutes, rows)
	return s.finish(models.CollectionRoutes, resultFrom(synced, failed))
}

// SyncCustomers upserts every customer by id
func (s *RemoteSyncService) SyncCustomers(ctx context.Context, customers []models.Customer) SyncResult {
	if !s.CheckConnection(ctx) {
		return notAttempted()
	}

	rows := lo.Map(customers, func(c models.Customer, _ int) database.RemoteCustomer {
		return database.RemoteCustomer{
			ID:      c.ID,
			Code:    c.Code,
			Name:    c.Name,
			Phone:   database.Nullable(c.Phone),
			Address: database.Nullable(c.Address),
			RouteID: database.Nullable(c.RouteID),
			Notes:   database.Nullable(c.Notes),
		}
	})
	synced, failed := upsertInBatches(ctx, s, database.RemoteTableCustomers, rows)
	return s.finish(models.CollectionCustomers, resultFrom(synced, failed))
}

// SyncEmployees upserts employees, then replaces each employee's remote advances.
// Advances have no remote identity, so for every batch of employees their remote
// advances are deleted and re-inserted inside one transaction.
func (s *RemoteSyncService) SyncEmployees(ctx context.Context, employees []models.Employee) SyncResult {
	if !s.CheckConnection(ctx) {
		return notAttempted()
	}

	rows := lo.Map(employees, func(e models.Employee, _ int) database.RemoteEmployee {
		row := database.RemoteEmployee{
			ID:          e.ID,
			Code:        e.Code,
			Name:        e.Name,
			Phone:       database.Nullable(e.Phone),
			Salary:      e.Salary,
			Notes:       database.Nullable(e.Notes),
			SalaryMonth: database.Nullable(e.SalaryMonth),
			SalaryPaid:  e.SalaryPaid,
		}
		if e.SalaryYear != 0 {
			year := e.SalaryYear
			row.SalaryYear = &year
		}
		return row
	})
	synced, failed := upsertInBatches(ctx, s, database.RemoteTableEmployees, rows)

	for i, batch := range lo.Chunk(employees, s.batchSize) {
		ids := lo.Map(batch, func(e models.Employee, _ int) string { return e.ID })
		advances := lo.FlatMap(batch, func(e models.Employee, _ int) []database.RemoteAdvance {
			return lo.Map(e.Advances, func(a models.Advance, _ int) database.RemoteAdvance {
				return database.RemoteAdvance{
					EmployeeID: e.ID,
					Date:       a.Date,
					Amount:     a.Amount,
					Notes:      database.Nullable(a.Notes),
				}
			})
		})

		err := s.client.ReplaceChildren(ctx, database.RemoteTableAdvances, "employee_id", ids, advances)
		if err != nil {
			fields := append([]zap.Field{
				zap.Int("batch", i+1),
				zap.Int("employees", len(ids)),
				zap.Int("advances", len(advances)),
			}, remoteErrorFields(err)...)
			s.logger.Error("advance replace failed", fields...)
			failed += max(len(advances), 1)
			continue
		}
		synced += len(advances)
	}

	return s.finish(models.CollectionEmployees, resultFrom(synced, failed))
}

// SyncSalesRecords flattens sale records into one remote row per (sale, product)
// and upserts them by a derived id, so repeated syncs update rather than duplicate.
func (s *RemoteSyncService) SyncSalesRecords(ctx context.Context, records []models.SaleRecord, products []models.Product, routes []models.Route) SyncResult {
	if !s.CheckConnection(ctx) {
		return notAttempted()
	}

	rows := s.SaleRows(records, products, routes)
	synced, failed := upsertInBatches(ctx, s, database.RemoteTableSales, rows)
	return s.finish(models.CollectionSalesRecords, resultFrom(synced, failed))
}

// ResyncSalesRecords deletes every remote sale row before pushing the local records,
// removing rows of sales that were deleted locally.
func (s *RemoteSyncService) ResyncSalesRecords(ctx context.Context, records []models.SaleRecord, products []models.Product, routes []models.Route) SyncResult {
	if !s.CheckConnection(ctx) {
		return notAttempted()
	}

	rows := s.SaleRows(records, products, routes)
	if err := s.client.DeleteAll(ctx, database.RemoteTableSales); err != nil {
		s.logger.Error("failed to clear remote sales", remoteErrorFields(err)...)
		return s.finish(models.CollectionSalesRecords, resultFrom(0, max(len(rows), 1)))
	}

	synced, failed := upsertInBatches(ctx, s, database.RemoteTableSales, rows)
	return s.finish(models.CollectionSalesRecords, resultFrom(synced, failed))
}

// SaleRows maps sale records onto remote sale rows. Lines whose product or route
// cannot be resolved are skipped with a warning. Rows sharing an id keep the last one.
func (s *RemoteSyncService) SaleRows(records []models.SaleRecord, products []models.Product, routes []models.Route) []database.RemoteSale {
	productsByID := lo.KeyBy(products, func(p models.Product) string { return p.ID })
	routesByID := lo.KeyBy(routes, func(r models.Route) string { return r.ID })

	rows := make([]database.RemoteSale, 0, len(records))
	index := make(map[string]int)

	for _, record := range records {
		route, routeOK := routesByID[record.RouteID]
		for _, item := range record.Items {
			product, productOK := productsByID[item.ProductID]
			if !productOK || !routeOK {
				s.logger.Warn("skipping sale line with unknown product or route",
					zap.String("sale", record.ID),
					zap.String("product", item.ProductID),
					zap.String("route", record.RouteID))
				continue
			}

			var returned, damaged int
			if entry, ok := record.EntryFor(item.ProductID); ok {
				returned, damaged = entry.Returned, entry.Damaged
			}

			row := database.RemoteSale{
				ID:        s.rowID(record.ID, item.ProductID),
				Date:      record.Date,
				Product:   product.Name,
				Route:     route.Name,
				Quantity:  item.Quantity,
				UnitPrice: item.Price,
				Returned:  returned,
				Damaged:   damaged,
			}

			if at, dup := index[row.ID]; dup {
				rows[at] = row
				continue
			}
			index[row.ID] = len(rows)
			rows = append(rows, row)
		}
	}
	return rows
}

// SyncAllData syncs all five entity types concurrently. When the remote store is
// unreachable nothing is attempted.
func (s *RemoteSyncService) SyncAllData(ctx context.Context, data models.DataSet) SyncReport {
	if !s.CheckConnection(ctx) {
		report := notAttemptedReport()
		s.metrics.observeRun(report, 0)
		return report
	}

	start := time.Now()
	var products, routes, customers, employees, sales SyncResult

	var g errgroup.Group
	g.Go(func() error {
		products = s.SyncProducts(ctx, data.Products)
		return nil
	})
	g.Go(func() error {
		routes = s.SyncRoutes(ctx, data.Routes)
		return nil
	})
	g.Go(func() error {
		customers = s.SyncCustomers(ctx, data.Customers)
		return nil
	})
	g.Go(func() error {
		employees = s.SyncEmployees(ctx, data.Employees)
		return nil
	})
	g.Go(func() error {
		sales = s.SyncSalesRecords(ctx, data.SalesRecords, data.Products, data.Routes)
		return nil
	})
	_ = g.Wait()

	report := SyncReport{
		models.CollectionProducts:     products,
		models.CollectionRoutes:       routes,
		models.CollectionCustomers:    customers,
		models.CollectionEmployees:    employees,
		models.CollectionSalesRecords: sales,
	}

	elapsed := time.Since(start)
	s.metrics.observeRun(report, elapsed)

	synced, failed := report.Totals()
	s.logger.Info("sync pass finished",
		zap.String("status", string(report.Status())),
		zap.Int("synced", synced),
		zap.Int("failed", failed),
		zap.Duration("elapsed", elapsed))
	return report
}
