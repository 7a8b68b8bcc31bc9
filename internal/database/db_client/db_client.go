package db_client

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

type Params struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

func (p Params) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Password),
		Host:   p.Host + ":" + p.Port,
		Path:   "/" + p.Database,
	}
	return u.String()
}

// MigrateURL is the DSN under the pgx5 scheme golang-migrate registers.
func (p Params) MigrateURL() string {
	return "pgx5" + strings.TrimPrefix(p.DSN(), "postgres")
}

// Open connects through the pgx stdlib driver and pings within 5 s.
func Open(ctx context.Context, p Params) (*sql.DB, error) {
	db, err := sql.Open("pgx", p.DSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		zap.L().Error("pg_connect", zap.String("host", p.Host), zap.Error(err))
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}
