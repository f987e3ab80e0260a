// Bench is the scheduling server for the makerspace. It handles booking
// requests from the internet and stores persistent state in sqlite.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"

	"github.com/TheLab-ms/bench/engine"
	"github.com/TheLab-ms/bench/engine/db"
	"github.com/TheLab-ms/bench/modules/api"
	"github.com/TheLab-ms/bench/modules/audit"
	"github.com/TheLab-ms/bench/modules/auth"
	"github.com/TheLab-ms/bench/modules/bookings"
	"github.com/TheLab-ms/bench/modules/members"
	"github.com/TheLab-ms/bench/modules/metrics"
	"github.com/TheLab-ms/bench/modules/resources"
	"github.com/TheLab-ms/bench/modules/series"
	"github.com/TheLab-ms/bench/modules/undo"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HttpAddr string `envDefault:":8080"`

	DBPath string `envDefault:"bench.sqlite3"`

	// BootstrapEmail and BootstrapPassword seed the first tender account on
	// an empty database so someone can log in and configure the rest.
	BootstrapEmail    string
	BootstrapPassword string
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	godotenv.Load()
	conf, err := env.ParseAsWithOptions[Config](env.Options{Prefix: "BENCH_", UseFieldNameByDefault: true})
	if err != nil {
		panic(err)
	}

	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		err := engine.CheckHealthProbe("http://localhost:8080/healthz") // assume server is running on the default port
		if err != nil {
			panic(err)
		}
		return
	}

	app, err := newApp(conf, getSelfURL(conf))
	if err != nil {
		panic(err)
	}

	app.Run(context.TODO())
}

func newApp(conf Config, self *url.URL) (*engine.App, error) {
	database, err := db.Open(conf.DBPath)
	if err != nil {
		panic(err)
	}

	router := engine.NewRouter()
	router.Handle("GET", "/healthz", engine.ServeHealthProbe(database))

	authIss := engine.NewTokenIssuer("auth.pem")

	a := engine.NewApp(conf.HttpAddr, router)

	// The authenticator must be in place before any module attaches
	// authenticated routes.
	authModule := auth.New(database, authIss)
	a.Add(authModule)
	a.Router.Authenticator = authModule // IMPORTANT

	auditModule := audit.New(database)
	a.Add(auditModule)
	rec := auditModule.Recorder()

	membersModule := members.New(database, rec)
	a.Add(membersModule)
	a.Add(resources.New(database, rec))
	a.Add(bookings.New(database, rec, undo.NewCoordinator(), self))
	a.Add(series.New(database, rec))
	a.Add(metrics.New())

	apiModule, err := api.New(database)
	if err != nil {
		return nil, err
	}
	a.Add(apiModule)

	if conf.BootstrapEmail != "" {
		if err := bootstrap(membersModule, conf); err != nil {
			return nil, err
		}
	}

	return a, nil
}

// bootstrap seeds the first tender account if no member has the address yet.
func bootstrap(m *members.Module, conf Config) error {
	_, err := m.Create(conf.BootstrapEmail, conf.BootstrapPassword, auth.RoleTender)
	if err == members.ErrDuplicateEmail {
		return nil
	}
	if err != nil {
		return err
	}
	slog.Info("bootstrapped initial tender account", "email", conf.BootstrapEmail)
	return nil
}

func getSelfURL(conf Config) *url.URL {
	str := os.Getenv("SELF_URL")
	if str == "" {
		conn, err := net.Dial("udp4", "8.8.8.8:53")
		if err != nil {
			panic(err)
		}
		conn.Close()

		_, port, _ := net.SplitHostPort(conf.HttpAddr)
		str = fmt.Sprintf("http://%s:%s", conn.LocalAddr().(*net.UDPAddr).IP, port)
		slog.Info("discovered self URL", "url", str)
	}

	self, err := url.Parse(str)
	if err != nil {
		panic(err)
	}
	return self
}
