package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"DistroApp/app/database"
	"DistroApp/app/models"

	"github.com/bep/debounce"
	"go.uber.org/zap"
)

// StoreState is the lifecycle phase of a StoreService
type StoreState string

const (
	StateUninitialized StoreState = "uninitialized"
	StateLoading       StoreState = "loading"
	StateReady         StoreState = "ready"
	StateUnloading     StoreState = "unloading"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrDuplicateSaleRecord = errors.New("a sale record already exists for this date and route")
	ErrStoreNotReady       = errors.New("store is not ready")
)

const (
	// DefaultDebounceDelay is the quiet period before a background sync
	DefaultDebounceDelay = 5 * time.Second

	autosaveTimeout   = 30 * time.Second
	backgroundTimeout = 2 * time.Minute
)

// DurableStore persists whole named collections
type DurableStore interface {
	Read(ctx context.Context, name string) ([]json.RawMessage, bool)
	Write(ctx context.Context, name string, value any) database.WriteResult
}

// ObjectStore is the embedded per-collection database
type ObjectStore interface {
	Init(ctx context.Context) error
	SaveItems(ctx context.Context, c models.Collection, docs []database.Document) bool
	GetAllItems(ctx context.Context, c models.Collection) []database.Document
}

// SyncBackend pushes snapshots to the remote store
type SyncBackend interface {
	CheckConnection(ctx context.Context) bool
	SyncAllData(ctx context.Context, data models.DataSet) SyncReport
}

// StoreDeps wires a StoreService. Durable and Objects are required.
type StoreDeps struct {
	Durable       DurableStore
	Objects       ObjectStore
	Remote        SyncBackend
	Notifier      Notifier
	Logger        *zap.Logger
	DebounceDelay time.Duration
	// Sources overrides the startup read chain
	Sources []LoadSource
}

// StoreService owns the in-memory collections and keeps the storage tiers in step with them
type StoreService struct {
	durable  DurableStore
	objects  ObjectStore
	remote   SyncBackend
	notifier Notifier
	logger   *zap.Logger
	sources  []LoadSource

	mu        sync.RWMutex
	data      models.DataSet
	state     StoreState
	connected bool
	lastSync  time.Time

	debounced func(func())
	// holds one token while a sync pass runs
	syncSlot  chan struct{}
	bgCancel  context.CancelFunc
	saveLocks map[models.Collection]*sync.Mutex
	saves     sync.WaitGroup
	events    subscribers
	now       func() time.Time
}

// NewStoreService creates an unloaded store
func NewStoreService(deps StoreDeps) *StoreService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("store")

	remote := deps.Remote
	if remote == nil {
		remote = NewRemoteSyncService(nil, RemoteSyncOptions{Logger: logger})
	}

	notifier := deps.Notifier
	if notifier == nil {
		notifier = logNotifier{logger: logger}
	}

	delay := deps.DebounceDelay
	if delay <= 0 {
		delay = DefaultDebounceDelay
	}

	sources := deps.Sources
	if len(sources) == 0 {
		sources = []LoadSource{
			durableSource{store: deps.Durable},
			objectStoreSource{store: deps.Objects},
			defaultsSource{logger: logger},
		}
	}

	saveLocks := make(map[models.Collection]*sync.Mutex, len(models.AllCollections))
	for _, c := range models.AllCollections {
		saveLocks[c] = &sync.Mutex{}
	}

	return &StoreService{
		durable:   deps.Durable,
		objects:   deps.Objects,
		remote:    remote,
		notifier:  notifier,
		logger:    logger,
		sources:   sources,
		data:      emptyDataSet(),
		state:     StateUninitialized,
		debounced: debounce.New(delay),
		syncSlot:  make(chan struct{}, 1),
		saveLocks: saveLocks,
		now:       time.Now,
	}
}

func emptyDataSet() models.DataSet {
	return models.DataSet{
		Products:     []models.Product{},
		Routes:       []models.Route{},
		Customers:    []models.Customer{},
		Employees:    []models.Employee{},
		SalesRecords: []models.SaleRecord{},
	}
}

// State returns the lifecycle phase
func (s *StoreService) State() StoreState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers an observer for change and sync events. The returned func removes it.
func (s *StoreService) Subscribe(fn func(ChangeEvent)) func() {
	return s.events.add(fn)
}

// Load resolves every collection through the source chain and mirrors each hit
// into the other local tier. Individual read failures fall through to the next source.
func (s *StoreService) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to load store: %w", err)
	}

	s.mu.Lock()
	if s.state != StateUninitialized {
		s.mu.Unlock()
		return nil
	}
	s.state = StateLoading
	s.mu.Unlock()

	if err := s.objects.Init(ctx); err != nil {
		s.logger.Warn("embedded store unavailable", zap.Error(err))
	}

	for _, c := range models.AllCollections {
		origin := s.resolve(ctx, c, s.sources)
		if origin == "" {
			s.replaceCollection(c, nil)
		}
		s.mirror(ctx, c, origin)
	}

	s.mu.Lock()
	s.state = StateReady
	data := s.data
	s.mu.Unlock()

	s.logger.Info("store loaded",
		zap.Int("products", len(data.Products)),
		zap.Int("routes", len(data.Routes)),
		zap.Int("customers", len(data.Customers)),
		zap.Int("employees", len(data.Employees)),
		zap.Int("sales_records", len(data.SalesRecords)))
	return nil
}

// resolve installs the first decodable hit from sources and returns its name, or "" when none had data
func (s *StoreService) resolve(ctx context.Context, c models.Collection, sources []LoadSource) string {
	for _, src := range sources {
		items, ok := src.TryLoad(ctx, c)
		if !ok {
			continue
		}
		if err := s.replaceCollection(c, items); err != nil {
			s.logger.Warn("discarding unreadable collection",
				zap.String("collection", c.String()),
				zap.String("source", src.Name()),
				zap.Error(err))
			continue
		}
		s.logger.Debug("collection loaded",
			zap.String("collection", c.String()),
			zap.String("source", src.Name()),
			zap.Int("items", len(items)))
		return src.Name()
	}
	return ""
}

func (s *StoreService) mirror(ctx context.Context, c models.Collection, origin string) {
	switch origin {
	case sourceDurable:
		if _, docs, err := s.encode(c); err == nil {
			s.writeObjects(ctx, c, docs)
		}
	case sourceObjects:
		if value, _, err := s.encode(c); err == nil {
			s.writeDurable(ctx, c, value)
		}
	}
}

func decodeRaw[T any](items []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(items))
	for i, raw := range items {
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, item)
	}
	return out, nil
}

// replaceCollection decodes items and swaps them in as the whole collection
func (s *StoreService) replaceCollection(c models.Collection, items []json.RawMessage) error {
	switch c {
	case models.CollectionProducts:
		products, err := decodeRaw[models.Product](items)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.data.Products = products
		s.mu.Unlock()
	case models.CollectionRoutes:
		routes, err := decodeRaw[models.Route](items)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.data.Routes = routes
		s.mu.Unlock()
	case models.CollectionCustomers:
		customers, err := decodeRaw[models.Customer](items)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.data.Customers = customers
		s.mu.Unlock()
	case models.CollectionEmployees:
		employees, err := decodeRaw[models.Employee](items)
		if err != nil {
			return err
		}
		for i := range employees {
			if employees[i].Advances == nil {
				employees[i].Advances = []models.Advance{}
			}
		}
		s.mu.Lock()
		s.data.Employees = employees
		s.mu.Unlock()
	case models.CollectionSalesRecords:
		records, err := decodeRaw[models.SaleRecord](items)
		if err != nil {
			return err
		}
		for i := range records {
			if records[i].Items == nil {
				records[i].Items = []models.SaleItem{}
			}
		}
		s.mu.Lock()
		s.data.SalesRecords = records
		s.mu.Unlock()
	default:
		return fmt.Errorf("unknown collection %q", c)
	}
	return nil
}

// dataSet returns the current collections. Mutations always swap in new slices,
// so the returned slices stay valid after the lock is released.
func (s *StoreService) dataSet() models.DataSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data
}

func (s *StoreService) encode(c models.Collection) (any, []database.Document, error) {
	data := s.dataSet()
	switch c {
	case models.CollectionProducts:
		docs, err := database.EncodeDocuments(data.Products)
		return data.Products, docs, err
	case models.CollectionRoutes:
		docs, err := database.EncodeDocuments(data.Routes)
		return data.Routes, docs, err
	case models.CollectionCustomers:
		docs, err := database.EncodeDocuments(data.Customers)
		return data.Customers, docs, err
	case models.CollectionEmployees:
		docs, err := database.EncodeDocuments(data.Employees)
		return data.Employees, docs, err
	case models.CollectionSalesRecords:
		docs, err := database.EncodeDocuments(data.SalesRecords)
		return data.SalesRecords, docs, err
	}
	return nil, nil, fmt.Errorf("unknown collection %q", c)
}

func (s *StoreService) writeDurable(ctx context.Context, c models.Collection, value any) bool {
	result := s.durable.Write(ctx, c.String(), value)
	if !result.Success {
		s.logger.Warn("durable write failed", zap.String("collection", c.String()), zap.String("error", result.Error))
	}
	return result.Success
}

func (s *StoreService) writeObjects(ctx context.Context, c models.Collection, docs []database.Document) bool {
	ok := s.objects.SaveItems(ctx, c, docs)
	if !ok {
		s.logger.Warn("embedded store write failed", zap.String("collection", c.String()))
	}
	return ok
}

// persist writes one collection to both local tiers. The snapshot is taken while
// holding the collection's save lock, so the last write to finish carries the newest state.
func (s *StoreService) persist(ctx context.Context, c models.Collection) bool {
	lock := s.saveLocks[c]
	lock.Lock()
	defer lock.Unlock()

	value, docs, err := s.encode(c)
	if err != nil {
		s.logger.Error("failed to encode collection", zap.String("collection", c.String()), zap.Error(err))
		return false
	}

	durableOK := s.writeDurable(ctx, c, value)
	objectsOK := s.writeObjects(ctx, c, docs)
	return durableOK && objectsOK
}

// autosave runs in its own goroutine; saves.Add was called by the mutation
func (s *StoreService) autosave(c models.Collection) {
	defer s.saves.Done()
	defer s.recoverPanic("autosave")

	ctx, cancel := context.WithTimeout(context.Background(), autosaveTimeout)
	defer cancel()
	s.persist(ctx, c)
}

func (s *StoreService) recoverPanic(task string) {
	if r := recover(); r != nil {
		s.logger.Error("recovered from panic", zap.String("task", task), zap.Any("panic", r))
	}
}

func (s *StoreService) publishChange(c models.Collection) {
	s.events.publish(s.logger, ChangeEvent{
		Type:       EventStoreChanged,
		Collection: c,
		Count:      s.count(c),
		Success:    true,
		At:         s.now(),
	})
}

func (s *StoreService) count(c models.Collection) int {
	data := s.dataSet()
	switch c {
	case models.CollectionProducts:
		return len(data.Products)
	case models.CollectionRoutes:
		return len(data.Routes)
	case models.CollectionCustomers:
		return len(data.Customers)
	case models.CollectionEmployees:
		return len(data.Employees)
	case models.CollectionSalesRecords:
		return len(data.SalesRecords)
	}
	return 0
}

// mutate applies fn to the collections, then schedules the autosave of c and
// restarts the shared sync timer
func (s *StoreService) mutate(c models.Collection, fn func(data *models.DataSet) error) error {
	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return ErrStoreNotReady
	}
	if err := fn(&s.data); err != nil {
		s.mu.Unlock()
		return err
	}
	s.saves.Add(1)
	s.mu.Unlock()

	go s.autosave(c)
	s.publishChange(c)
	s.debounced(s.debouncedSync)
	return nil
}

func (s *StoreService) debouncedSync() {
	defer s.recoverPanic("debounced sync")

	ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
	defer cancel()

	s.mu.Lock()
	if !s.connected || s.state != StateReady {
		s.mu.Unlock()
		return
	}
	s.bgCancel = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.bgCancel = nil
		s.mu.Unlock()
	}()
	s.runSync(ctx)
}

// IsConnected reports the result of the last connectivity check
func (s *StoreService) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *StoreService) setConnected(connected bool) {
	s.mu.Lock()
	s.connected = connected
	s.mu.Unlock()
}

// CheckConnection probes the remote store and remembers the answer
func (s *StoreService) CheckConnection(ctx context.Context) bool {
	connected := s.remote.CheckConnection(ctx)
	s.setConnected(connected)
	return connected
}

// LastSyncTime returns when the last sync pass ran, zero if never
func (s *StoreService) LastSyncTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}

// runSync pushes the current snapshot. Passes never overlap; waiting for the
// previous pass gives up when ctx is done.
func (s *StoreService) runSync(ctx context.Context) SyncReport {
	select {
	case s.syncSlot <- struct{}{}:
	case <-ctx.Done():
		s.logger.Warn("sync skipped, previous pass still running", zap.Error(ctx.Err()))
		return notAttemptedReport()
	}
	defer func() { <-s.syncSlot }()

	report := s.remote.SyncAllData(ctx, s.dataSet())
	if report.Status() == SyncNotAttempted {
		if ctx.Err() == nil {
			s.setConnected(false)
		}
		return report
	}

	synced, failed := report.Totals()
	s.mu.Lock()
	s.lastSync = s.now()
	s.mu.Unlock()

	s.events.publish(s.logger, ChangeEvent{
		Type:    EventSyncCompleted,
		Synced:  synced,
		Failed:  failed,
		Success: failed == 0,
		At:      s.LastSyncTime(),
	})
	return report
}

// InitialSync checks connectivity after load and pushes local data once when online
func (s *StoreService) InitialSync(ctx context.Context) {
	if !s.CheckConnection(ctx) {
		s.logger.Info("remote store offline, working locally")
		return
	}
	if s.dataSet().IsEmpty() {
		return
	}
	report := s.runSync(ctx)
	synced, failed := report.Totals()
	s.logger.Info("initial sync finished", zap.Int("synced", synced), zap.Int("failed", failed))
}

// SyncAllData runs a manual sync pass. It reports true only when every row was accepted.
func (s *StoreService) SyncAllData(ctx context.Context) bool {
	if !s.IsConnected() && !s.CheckConnection(ctx) {
		s.notifier.Notify(NotifyError, "Not connected to the remote database")
		return false
	}

	s.notifier.Notify(NotifyInfo, "Syncing data with the remote database...")
	report := s.runSync(ctx)
	if report.Status() == SyncNotAttempted {
		s.notifier.Notify(NotifyError, "Not connected to the remote database")
		return false
	}

	synced, failed := report.Totals()
	if failed == 0 {
		s.notifier.Notify(NotifySuccess, fmt.Sprintf("Synced %d records with the remote database", synced))
		return true
	}
	s.notifier.Notify(NotifyWarning, fmt.Sprintf("Synced %d records, %d records failed", synced, failed))
	return false
}

// ExportData returns the full snapshot. An all-empty session is refreshed from the
// local tiers first.
func (s *StoreService) ExportData(ctx context.Context) models.Snapshot {
	if s.dataSet().IsEmpty() {
		s.logger.Warn("all collections are empty, reloading before export")
		local := make([]LoadSource, 0, len(s.sources))
		for _, src := range s.sources {
			if src.Name() != sourceDefaults {
				local = append(local, src)
			}
		}
		for _, c := range models.AllCollections {
			if s.resolve(ctx, c, local) != "" {
				s.publishChange(c)
			}
		}
		if s.dataSet().IsEmpty() {
			s.notifier.Notify(NotifyWarning, "No data found to export")
		}
	}

	return models.NewSnapshot(s.dataSet(), s.now())
}

// ImportData replaces every collection present in payload as a list. It reports
// false only when payload is not a JSON object.
func (s *StoreService) ImportData(ctx context.Context, payload []byte) bool {
	if s.State() != StateReady {
		s.logger.Warn("import rejected", zap.Error(ErrStoreNotReady), zap.String("state", string(s.State())))
		s.notifier.Notify(NotifyError, "Data is not loaded yet, try the import again")
		return false
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(payload, &doc); err != nil || doc == nil {
		s.logger.Warn("rejected import document", zap.Error(err))
		s.notifier.Notify(NotifyError, "The imported data is not valid")
		return false
	}

	for key := range doc {
		if !models.Collection(key).Valid() && key != models.SnapshotKeyExportDate && key != models.SnapshotKeyVersion {
			s.logger.Debug("ignoring unknown import key", zap.String("key", key))
		}
	}

	var imported []string
	salesImported := false
	for _, c := range models.AllCollections {
		raw, ok := doc[c.String()]
		if !ok {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil || items == nil {
			s.logger.Warn("skipping import key that is not a list", zap.String("collection", c.String()))
			continue
		}
		if err := s.replaceCollection(c, items); err != nil {
			s.logger.Warn("skipping unreadable import key", zap.String("collection", c.String()), zap.Error(err))
			continue
		}

		s.persist(ctx, c)
		s.publishChange(c)
		imported = append(imported, c.String())
		if c == models.CollectionSalesRecords {
			salesImported = true
		}
	}

	s.logger.Info("data imported", zap.String("collections", strings.Join(imported, ",")))

	if salesImported && (s.IsConnected() || s.CheckConnection(ctx)) {
		report := s.runSync(ctx)
		if synced, failed := report.Totals(); failed == 0 {
			s.notifier.Notify(NotifySuccess, fmt.Sprintf("Synced %d records with the remote database", synced))
		} else {
			s.notifier.Notify(NotifyWarning, fmt.Sprintf("Synced %d records, %d records failed", synced, failed))
		}
	}

	s.notifier.Notify(NotifySuccess, "Data imported successfully")
	return true
}

// Close flushes every collection to both local tiers and, when connected, runs a
// final sync. It blocks until both finish or ctx is done.
func (s *StoreService) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return nil
	}
	s.state = StateUnloading
	cancelBackground := s.bgCancel
	s.mu.Unlock()

	// replace any pending timer callback with a no-op and stop a running one
	s.debounced(func() {})
	if cancelBackground != nil {
		cancelBackground()
	}
	s.saves.Wait()

	var failed []string
	for _, c := range models.AllCollections {
		if !s.persist(ctx, c) {
			failed = append(failed, c.String())
		}
	}

	if s.IsConnected() {
		report := s.runSync(ctx)
		synced, errs := report.Totals()
		s.logger.Info("final sync finished", zap.Int("synced", synced), zap.Int("failed", errs))
	}

	if len(failed) > 0 {
		return fmt.Errorf("failed to flush %s", strings.Join(failed, ", "))
	}
	s.logger.Info("store flushed")
	return nil
}
