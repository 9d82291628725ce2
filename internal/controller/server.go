package controller

import (
	"context"
	"time"

	"rsyaclean/internal/aws"
	"rsyaclean/internal/cache"
	"rsyaclean/internal/database"
	"rsyaclean/internal/history"
	"rsyaclean/internal/rabbitmq"
)

const healthTimeout = 3 * time.Second

type ServerController interface {
	DBHealth() error
	HistoryHealth() error
	CacheHealth() error
	RabbitHealth() error
	ArchiveHealth() error
	Online() string
}

type serverController struct {
	db      database.Database
	history history.Store
	cache   cache.Cache
	rabbit  rabbitmq.Client
	archive aws.ReportArchive
}

// NewServer builds the health controller. history, cache and archive are
// optional and report healthy when absent.
func NewServer(db database.Database, h history.Store, c cache.Cache, rabbit rabbitmq.Client, archive aws.ReportArchive) ServerController {
	return &serverController{
		db:      db,
		history: h,
		cache:   c,
		rabbit:  rabbit,
		archive: archive,
	}
}

func (sc *serverController) Online() string {
	return "Online"
}

func (sc *serverController) DBHealth() error {
	return sc.db.Health()
}

func (sc *serverController) HistoryHealth() error {
	if sc.history == nil {
		return nil
	}
	return sc.history.Health()
}

func (sc *serverController) CacheHealth() error {
	if sc.cache == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()
	return sc.cache.Ping(ctx)
}

func (sc *serverController) RabbitHealth() error {
	return sc.rabbit.Health()
}

func (sc *serverController) ArchiveHealth() error {
	if sc.archive == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()
	return sc.archive.TestConnection(ctx)
}
