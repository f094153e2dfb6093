package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/PedroReis16/live-document-app-sub000/backend/config"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/authtoken"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/cache"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/events"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/httpapi/handlers"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/httpapi/middleware"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/store"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/ws"
)

func main() {
	mint := flag.String("mint", "", "print a development token for this user id and exit")
	mintName := flag.String("name", "", "display name for -mint")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}
	secret := []byte(cfg.Auth.Secret)

	if *mint != "" {
		name := *mintName
		if name == "" {
			name = *mint
		}
		token, exp, err := authtoken.Sign(secret, *mint, name, *mint+"@example.com", cfg.Auth.TokenTTL)
		if err != nil {
			log.Fatalf("sign token failed: %v", err)
		}
		fmt.Println(token)
		log.Printf("token for %s expires %s", *mint, exp.Format(time.RFC3339))
		return
	}

	var repo store.Repository
	if cfg.Mysql.DSN != "" {
		db, err := store.InitMySQL(cfg.Mysql.DSN)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		repo = store.NewGormRepository(db)
	} else {
		log.Printf("mysql dsn empty, documents are kept in memory")
		repo = store.NewMemory()
	}

	var presence cache.Presence
	if len(cfg.Redis.Addrs) > 0 {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    cfg.Redis.Addrs,
			Password: cfg.Redis.Password,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer rdb.Close()
		presence = cache.NewRedisPresence(rdb)
	}

	var producer sarama.SyncProducer
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaCfg := sarama.NewConfig()
		// SyncProducer requires Return.Successes
		kafkaCfg.Producer.Return.Successes = true
		kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
		producer, err = sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
		if err != nil {
			log.Fatalf("Failed to connect kafka: %v", err)
		}
		defer producer.Close()
	} else {
		log.Printf("no kafka brokers, document events are dropped")
	}

	dispatcher := events.NewDispatcher(producer, cfg.Kafka.Topic, events.NewSemaphore(16), events.Options{
		QueueSize:   10_000,
		Workers:     4,
		MaxRetry:    3,
		BaseBackoff: 50 * time.Millisecond,
		MaxBackoff:  1 * time.Second,
	})
	defer dispatcher.Close()

	verify := func(token string) (string, error) {
		claims, err := authtoken.Parse(secret, token)
		if err != nil {
			return "", err
		}
		return claims.UserID, nil
	}
	hub := ws.NewHub(presence, repo)
	go hub.RunSweeper(context.Background(), ws.DefaultPresenceTTL/2)
	manager := ws.NewManager(hub, verify)

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(cors.New(cors.Config{
		// mobile clients and file:// pages send Origin: null
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	auth := middleware.AuthMiddleware(secret, repo)
	handlers.NewDocuments(repo, dispatcher, 24*time.Hour).Register(r.Group("/api", auth))

	collab := r.Group("/collab", auth)
	collab.GET("/ws", manager.WebSocketConnect)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Running.Port), Handler: r}
	log.Printf("collab server listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("server error: %v", err)
	}
}
