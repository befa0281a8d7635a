package commands

import (
	"os"

	"github.com/dgraph-io/badger/v4"

	"roiassist-backend/lib/configutil"
	"roiassist-backend/lib/restyutil"
	"roiassist-backend/lib/scrapers/roi"
	"roiassist-backend/lib/util/serviceutil"
	"roiassist-backend/pkg/migrations"
	"roiassist-backend/services/initiatives"
	"roiassist-backend/services/initiatives/db"

	_ "modernc.org/sqlite"
)

type Config struct {
	// sqlite file holding the collected initiatives
	Database string `json:"database"`
	StartUrl string `json:"start_url"`
	MaxPages int    `json:"max_pages"`
	// optional badger directory caching fetched pages, empty disables it
	PageCache string `json:"page_cache"`
}

var databaseFlag *string
var debugHttpFlag *string

func init() {
	databaseFlag = rootCmd.PersistentFlags().String("db", "", "Override the database path from the config.")
	debugHttpFlag = rootCmd.PersistentFlags().String("debug-http", "", "Dump full http transcripts into this directory.")
}

// readConfig tolerates a missing config.json5, everything has a
// workable default.
func readConfig() Config {
	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil && !os.IsNotExist(err) {
		serviceutil.Fatal("failed to read config", err)
	}
	if cfg.Database == "" {
		cfg.Database = "initiatives.db"
	}
	if *databaseFlag != "" {
		cfg.Database = *databaseFlag
	}
	return cfg
}

// openService wires up the database, the page cache and the scraper.
// The returned cleanup must run before exit.
func openService(cfg Config) (*initiatives.Service, func()) {
	database, err := migrations.OpenAndInitDB(db.Schema, cfg.Database)
	if err != nil {
		serviceutil.Fatal("failed to open database", err)
	}

	var cache *badger.DB
	if cfg.PageCache != "" {
		cache, err = badger.Open(badger.DefaultOptions(cfg.PageCache))
		if err != nil {
			serviceutil.Fatal("failed to open page cache", err)
		}
	}

	var debugOutput restyutil.InstrumentOutput
	if *debugHttpFlag != "" {
		debugOutput = restyutil.NewFilesystemOutput(*debugHttpFlag)
	}

	scraper, err := roi.NewClient(roi.ClientOptions{
		Cache:       cache,
		DebugOutput: debugOutput,
	})
	if err != nil {
		serviceutil.Fatal("failed to initialize scraper", err)
	}

	service := initiatives.NewService(database, scraper, initiatives.ServiceOptions{})
	return service, func() {
		if cache != nil {
			cache.Close()
		}
		database.Close()
	}
}
