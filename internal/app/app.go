package app

import (
	"context"
	"net/http"

	"github.com/casbin/casbin/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/keyfold/keyfold/internal/pkg/clock"
	"github.com/keyfold/keyfold/internal/pkg/config"
	"github.com/keyfold/keyfold/internal/pkg/goroutine"
	"github.com/keyfold/keyfold/internal/pkg/hash"
	"github.com/keyfold/keyfold/internal/pkg/idempotency"
	"github.com/keyfold/keyfold/internal/pkg/instrument"
	"github.com/keyfold/keyfold/internal/pkg/jwt"
	"github.com/keyfold/keyfold/internal/pkg/mail"
	"github.com/keyfold/keyfold/internal/pkg/messaging"
	"github.com/keyfold/keyfold/internal/pkg/passcode"
	"github.com/keyfold/keyfold/internal/pkg/pgxcasbin"
	"github.com/keyfold/keyfold/internal/pkg/router"
	"github.com/keyfold/keyfold/internal/pkg/secrets"
	"github.com/keyfold/keyfold/internal/pkg/storage"
	"github.com/keyfold/keyfold/internal/pkg/uid"
	"github.com/keyfold/keyfold/internal/pkg/validator"
	"github.com/redis/go-redis/v9"
)

// App wires dependencies and manages service lifecycle.
type App struct {
	ctx    context.Context
	cancel context.CancelFunc

	// configuration
	config config.Config
	ins    instrument.Instrumentation

	// libraries
	goroutine *goroutine.Manager
	validator validator.Validator
	clock     clock.Clocker
	hmac      hash.Hash
	uid       uid.NumberID
	oid       uid.StringID
	uuid      uid.StringID
	jwt       jwt.JWT
	encryptor secrets.Encryptor
	passcode  passcode.Generator

	// resources
	dbConn        *pgxpool.Pool
	cacheConn     *redis.Client
	idemp         idempotency.Idempotency
	mail          mail.Mail
	messaging     messaging.Messaging
	storage       storage.Storage
	casbin        *casbin.Enforcer
	casbinWatcher *pgxcasbin.Watcher

	// server
	router     *router.Router
	httpServer *http.Server

	//
	closers []struct {
		name string
		fn   func(context.Context) error
	}
}

// New initializes the application with default wiring and returns an App instance.
func New() *App {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		ctx:    ctx,
		cancel: cancel,
	}

	app.initConfig()
	app.initInstrument()
	app.initLibraries()
	app.initJWT()
	app.initDatabase()
	app.initCache()
	app.initMail()
	app.initStorage()
	app.initMessaging()
	app.initCasbin()
	app.initHTTPServer()
	app.initModules()
	app.initClosers()

	return app
}
