package main

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"DistroApp/app/config"
	"DistroApp/app/database"
	"DistroApp/app/models"
	"DistroApp/app/services"
	"DistroApp/app/websocket"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/windows"
	"github.com/wailsapp/wails/v2/pkg/runtime"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed all:frontend/dist
var assets embed.FS

const (
	loadTimeout  = 2 * time.Minute
	closeTimeout = 30 * time.Second
)

// App struct
type App struct {
	ctx           context.Context
	cfg           *config.AppConfig
	paths         config.Paths
	LoggerService *services.LoggerService
	StoreService  *services.StoreService
	syncService   *services.RemoteSyncService
	statusServer  *services.StatusAPIServer
	localDB       *database.LocalDB
	kv            database.KeyValueStore
	fileStore     *database.FileStore
	remoteDB      *gorm.DB
	registry      *prometheus.Registry
	unsubscribe   func()
}

// NewApp creates a new App application struct
func NewApp(cfg *config.AppConfig, paths config.Paths, logger *services.LoggerService) *App {
	return &App{cfg: cfg, paths: paths, LoggerService: logger}
}

// wailsNotifier shows store notifications as frontend toasts
type wailsNotifier struct {
	app *App
}

func (n wailsNotifier) Notify(level services.NotificationLevel, message string) {
	n.app.LoggerService.Logger().Debug("notification", zap.String("level", string(level)), zap.String("message", message))
	if n.app.ctx == nil {
		return
	}
	runtime.EventsEmit(n.app.ctx, "notification", map[string]string{
		"level":   string(level),
		"message": message,
	})
}

// initStores opens the local tiers and the remote connection and builds the store.
// It runs before wails.Run so the bound services exist.
func (a *App) initStores() error {
	log := a.LoggerService.Logger()
	ctx := context.Background()

	a.localDB = database.NewLocalDB(a.paths.LocalDB, log)
	if err := a.localDB.Init(ctx); err != nil {
		return fmt.Errorf("failed to open local database: %w", err)
	}

	kv, err := a.openKV(ctx)
	if err != nil {
		return err
	}
	a.kv = kv

	dataDir := a.paths.Data
	if a.cfg.Storage.Mode == config.StorageModeKV {
		dataDir = ""
	}
	a.fileStore = database.NewFileStore(dataDir, a.paths.Backups, a.kv, log)

	rowID, err := a.rowIDFunc()
	if err != nil {
		return err
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a.syncService = services.NewRemoteSyncService(a.openRemote(), services.RemoteSyncOptions{
		BatchSize:    a.cfg.Sync.BatchSize,
		RowID:        rowID,
		ProbeTimeout: a.cfg.Sync.ProbeTimeout(),
		Metrics:      services.NewSyncMetrics(a.registry),
		Logger:       log,
	})

	a.StoreService = services.NewStoreService(services.StoreDeps{
		Durable:       a.fileStore,
		Objects:       a.localDB,
		Remote:        a.syncService,
		Notifier:      wailsNotifier{app: a},
		Logger:        log,
		DebounceDelay: a.cfg.Sync.DebounceDelay(),
	})
	return nil
}

func (a *App) openKV(ctx context.Context) (database.KeyValueStore, error) {
	if a.cfg.Storage.KVBackend == config.KVBackendRedis {
		redisKV := database.NewRedisKV(a.cfg.Storage.RedisAddr, a.cfg.Storage.RedisPassword, a.cfg.Storage.RedisDB)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		err := redisKV.Ping(pingCtx)
		if err == nil {
			a.LoggerService.LogInfo("Using Redis key-value store", a.cfg.Storage.RedisAddr)
			return redisKV, nil
		}
		a.LoggerService.LogWarning("Redis unavailable, using local key-value store", err.Error())
		redisKV.Close()
	}

	kv, err := database.NewSQLiteKV(a.localDB.DB())
	if err != nil {
		return nil, fmt.Errorf("failed to open key-value store: %w", err)
	}
	return kv, nil
}

// openRemote returns nil when sync is disabled or not configured
func (a *App) openRemote() services.RemoteClient {
	if !a.cfg.Sync.Enabled || !a.cfg.Database.Configured() {
		a.LoggerService.LogInfo("Remote sync disabled, working locally")
		return nil
	}

	db, err := database.OpenRemote(a.cfg.Database, a.LoggerService.Logger())
	if err != nil {
		a.LoggerService.LogError("Remote database unavailable", err)
		return nil
	}
	a.remoteDB = db

	if a.cfg.Database.AutoMigrate {
		if err := database.EnsureRemoteSchema(db); err != nil {
			a.LoggerService.LogWarning("Remote schema check failed", err.Error())
		}
	}
	return services.NewGormRemoteClient(db, database.RemoteTableSales)
}

func (a *App) rowIDFunc() (services.RowIDFunc, error) {
	if a.cfg.Sync.RowIDScheme == config.RowIDSchemeLegacy {
		return services.LegacyRowID, nil
	}
	rowID, err := services.NewKeyedRowID([]byte(a.cfg.Sync.RowIDKey))
	if err != nil {
		return nil, fmt.Errorf("failed to configure row ids: %w", err)
	}
	return rowID, nil
}

// startup is called when the app starts. The context is saved
// so we can call the runtime methods
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	a.unsubscribe = a.StoreService.Subscribe(func(event services.ChangeEvent) {
		runtime.EventsEmit(a.ctx, string(event.Type), event)
	})

	go func() {
		defer a.LoggerService.RecoverPanic()

		loadCtx, cancel := context.WithTimeout(ctx, loadTimeout)
		defer cancel()

		if err := a.StoreService.Load(loadCtx); err != nil {
			a.LoggerService.LogError("Failed to load data", err)
			return
		}
		runtime.EventsEmit(a.ctx, "store_ready")
		a.StoreService.InitialSync(loadCtx)
	}()

	if a.cfg.StatusServer.Enabled {
		hub := websocket.NewHub(a.LoggerService.Logger())
		a.statusServer = services.NewStatusAPIServer(a.StoreService, hub, a.registry, a.cfg.StatusServer, a.LoggerService.Logger())
		if err := a.statusServer.Start(); err != nil {
			a.LoggerService.LogError("Status server failed to start", err)
			a.statusServer = nil
		}
	}
}

// beforeClose is called when the application is about to quit,
// either by clicking the window close button or calling runtime.Quit.
// The close waits until every collection is flushed.
func (a *App) beforeClose(ctx context.Context) (prevent bool) {
	a.LoggerService.LogInfo("Application closing")

	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if err := a.StoreService.Close(closeCtx); err != nil {
		a.LoggerService.LogError("Failed to flush data on close", err)
	}
	if a.unsubscribe != nil {
		a.unsubscribe()
	}

	if a.statusServer != nil {
		a.LoggerService.LogInfo("Stopping status server")
		if err := a.statusServer.Stop(closeCtx); err != nil {
			a.LoggerService.LogWarning("Status server stop error", err.Error())
		}
	}

	if err := database.CloseRemote(a.remoteDB); err != nil {
		a.LoggerService.LogError("Error closing remote database", err)
	}
	if a.kv != nil {
		a.kv.Close()
	}
	if err := a.localDB.Close(); err != nil {
		a.LoggerService.LogError("Error closing local database", err)
	}

	a.LoggerService.LogInfo("Application shutdown complete")
	return false
}

// Products

func (a *App) GetProducts() []models.Product {
	return a.StoreService.Products()
}

func (a *App) AddProduct(p models.Product) (models.Product, error) {
	return a.StoreService.AddProduct(p)
}

func (a *App) UpdateProduct(p models.Product) error {
	return a.StoreService.UpdateProduct(p)
}

func (a *App) DeleteProduct(id string) error {
	return a.StoreService.DeleteProduct(id)
}

// Routes

func (a *App) GetRoutes() []models.Route {
	return a.StoreService.Routes()
}

func (a *App) AddRoute(r models.Route) (models.Route, error) {
	return a.StoreService.AddRoute(r)
}

func (a *App) UpdateRoute(r models.Route) error {
	return a.StoreService.UpdateRoute(r)
}

func (a *App) DeleteRoute(id string) error {
	return a.StoreService.DeleteRoute(id)
}

// Customers

func (a *App) GetCustomers() []models.Customer {
	return a.StoreService.Customers()
}

func (a *App) AddCustomer(c models.Customer) (models.Customer, error) {
	return a.StoreService.AddCustomer(c)
}

func (a *App) UpdateCustomer(c models.Customer) error {
	return a.StoreService.UpdateCustomer(c)
}

func (a *App) DeleteCustomer(id string) error {
	return a.StoreService.DeleteCustomer(id)
}

// Employees

func (a *App) GetEmployees() []models.Employee {
	return a.StoreService.Employees()
}

func (a *App) AddEmployee(e models.Employee) (models.Employee, error) {
	return a.StoreService.AddEmployee(e)
}

func (a *App) UpdateEmployee(e models.Employee) error {
	return a.StoreService.UpdateEmployee(e)
}

func (a *App) DeleteEmployee(id string) error {
	return a.StoreService.DeleteEmployee(id)
}

func (a *App) AddEmployeeAdvance(employeeID string, advance models.Advance) error {
	return a.StoreService.AddEmployeeAdvance(employeeID, advance)
}

func (a *App) ResetEmployeeAdvances(employeeID string) error {
	return a.StoreService.ResetEmployeeAdvances(employeeID)
}

// Sales

func (a *App) GetSalesRecords() []models.SaleRecord {
	return a.StoreService.SalesRecords()
}

// CreateSaleRecord builds a record from the daily form entries and stores it
func (a *App) CreateSaleRecord(date, routeID, employeeID string, entries []models.SaleEntry) (models.SaleRecord, error) {
	record, err := models.BuildSaleRecord(date, routeID, employeeID, entries, a.StoreService.Products())
	if err != nil {
		return models.SaleRecord{}, err
	}
	return a.StoreService.AddSaleRecord(record)
}

func (a *App) UpdateSaleRecord(r models.SaleRecord) error {
	return a.StoreService.UpdateSaleRecord(r)
}

func (a *App) DeleteSaleRecord(id string) error {
	return a.StoreService.DeleteSaleRecord(id)
}

func (a *App) GetSaleRecordsByDate(date string) []models.SaleRecord {
	return a.StoreService.GetSaleRecordsByDate(date)
}

func (a *App) GetSaleRecordsByRoute(routeID string) []models.SaleRecord {
	return a.StoreService.GetSaleRecordsByRoute(routeID)
}

// FindSaleRecord returns nil when no record exists for the date and route
func (a *App) FindSaleRecord(date, routeID string) *models.SaleRecord {
	record, ok := a.StoreService.FindSaleRecord(date, routeID)
	if !ok {
		return nil
	}
	return &record
}

// Sync

// SyncInfo is the sync state shown in the status bar
type SyncInfo struct {
	Connected    bool   `json:"connected"`
	LastSyncTime string `json:"lastSyncTime,omitempty"`
}

func (a *App) SyncAllData() bool {
	return a.StoreService.SyncAllData(a.ctx)
}

func (a *App) CheckConnection() bool {
	return a.StoreService.CheckConnection(a.ctx)
}

func (a *App) GetSyncInfo() SyncInfo {
	info := SyncInfo{Connected: a.StoreService.IsConnected()}
	if last := a.StoreService.LastSyncTime(); !last.IsZero() {
		info.LastSyncTime = last.Format(time.RFC3339)
	}
	return info
}

// ResyncSales replaces every remote sale row with the local records
func (a *App) ResyncSales() services.SyncResult {
	return a.syncService.ResyncSalesRecords(a.ctx,
		a.StoreService.SalesRecords(),
		a.StoreService.Products(),
		a.StoreService.Routes())
}

// Export / import

// ExportData writes the snapshot to a file chosen by the user. An empty path means cancelled.
func (a *App) ExportData() (string, error) {
	snapshot := a.StoreService.ExportData(a.ctx)

	path, err := runtime.SaveFileDialog(a.ctx, runtime.SaveDialogOptions{
		Title:           "Export data",
		DefaultFilename: fmt.Sprintf("distroapp-export-%s.json", time.Now().Format("2006-01-02T15-04-05")),
		Filters:         []runtime.FileFilter{{DisplayName: "JSON", Pattern: "*.json"}},
	})
	if err != nil || path == "" {
		return "", err
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode export: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}

	a.LoggerService.LogInfo("Data exported", path)
	return path, nil
}

// ImportData reads a snapshot file chosen by the user
func (a *App) ImportData() (bool, error) {
	path, err := runtime.OpenFileDialog(a.ctx, runtime.OpenDialogOptions{
		Title:   "Import data",
		Filters: []runtime.FileFilter{{DisplayName: "JSON", Pattern: "*.json"}},
	})
	if err != nil || path == "" {
		return false, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read import file: %w", err)
	}
	return a.StoreService.ImportData(a.ctx, data), nil
}

// Backups

func (a *App) CreateBackup(label string) (database.BackupInfo, error) {
	return a.fileStore.CreateBackup(label)
}

func (a *App) ListBackups() ([]database.BackupInfo, error) {
	return a.fileStore.ListBackups()
}

// RestoreBackup copies a backup over the collection files and loads it into the session
func (a *App) RestoreBackup(name string) error {
	if err := a.fileStore.RestoreBackup(name); err != nil {
		return err
	}

	restored := make(map[string]json.RawMessage, len(models.AllCollections))
	for _, c := range models.AllCollections {
		items, ok := a.fileStore.Read(a.ctx, c.String())
		if !ok {
			continue
		}
		data, err := json.Marshal(items)
		if err != nil {
			return fmt.Errorf("failed to read restored %s: %w", c, err)
		}
		restored[c.String()] = data
	}

	payload, err := json.Marshal(restored)
	if err != nil {
		return fmt.Errorf("failed to read restored backup: %w", err)
	}
	if !a.StoreService.ImportData(a.ctx, payload) {
		return fmt.Errorf("backup %s could not be loaded", name)
	}
	return nil
}

// GetPairingQRCode returns a QR code image of the status server URL
func (a *App) GetPairingQRCode() (string, error) {
	if a.statusServer == nil {
		return "", fmt.Errorf("status server is disabled")
	}
	return a.statusServer.PairingQRCode()
}

func main() {
	cfg, paths, err := config.Load()
	if err != nil {
		fallback := services.NewLoggerService("", config.LogConfig{})
		fallback.LogError("Failed to load configuration", err)
		os.Exit(1)
	}

	// Initialize logger FIRST to catch all errors
	loggerService := services.NewLoggerService(paths.Logs, cfg.Log)
	defer loggerService.Close()

	// Recover from any panic and log it
	defer func() {
		if r := recover(); r != nil {
			loggerService.LogPanic(r)
			os.Exit(1)
		}
	}()

	loggerService.LogInfo("Application starting", paths.Root)
	if err := loggerService.CleanOldLogs(30); err != nil {
		loggerService.LogWarning("Could not clean old logs", err.Error())
	}

	if cfg.FirstRun {
		if err := config.NewManager(paths.Root).MarkSetupComplete(); err != nil {
			loggerService.LogWarning("Could not update config.json", err.Error())
		}
	}

	app := NewApp(cfg, paths, loggerService)
	if err := app.initStores(); err != nil {
		loggerService.LogError("Failed to initialize storage", err)
		os.Exit(1)
	}

	err = wails.Run(&options.App{
		Title:  "DistroApp",
		Width:  1280,
		Height: 800,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		BackgroundColour: &options.RGBA{R: 27, G: 38, B: 54, A: 1},
		OnStartup:        app.startup,
		OnBeforeClose:    app.beforeClose,
		Bind: []interface{}{
			app,
			loggerService,
		},
		Windows: &windows.Options{
			WebviewIsTransparent: false,
			WindowIsTranslucent:  false,
			DisableWindowIcon:    false,
		},
	})

	if err != nil {
		loggerService.LogError("Wails application error", err)
		println("Error:", err.Error())
	}
}
