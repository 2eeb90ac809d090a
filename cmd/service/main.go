package main

import (
	"log"
	"net/http"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"karaoke-service/internal/cast"
	"karaoke-service/internal/chat"
	"karaoke-service/internal/resolver"
	"karaoke-service/internal/session"
)

type Config struct {
	Port         string `env:"PORT" envDefault:"8080"`
	SnapshotFile string `env:"SNAPSHOT_FILE" envDefault:"sessions.json"`

	YouTubeAPIKey    string `env:"YOUTUBE_API_KEY"`
	YouTubeVideosURL string `env:"YOUTUBE_VIDEOS_URL" envDefault:"https://www.googleapis.com/youtube/v3/videos"`

	// Empty REDIS_URL disables the resolver's title cache.
	RedisURL string `env:"REDIS_URL"`

	CastEnabled          bool          `env:"CAST_ENABLED" envDefault:"true"`
	CastDiscoveryTimeout time.Duration `env:"CAST_DISCOVERY_TIMEOUT" envDefault:"10s"`
}

func main() {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("karaoke-service: parse env: %v", err)
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("karaoke-service: invalid REDIS_URL: %v", err)
		}
		rdb = redis.NewClient(opt)
		defer rdb.Close()
	}

	if cfg.YouTubeAPIKey == "" {
		log.Printf("karaoke-service: YOUTUBE_API_KEY not set, video titles fall back to placeholders")
	}
	res := resolver.New(cfg.YouTubeAPIKey, cfg.YouTubeVideosURL, rdb)

	store := session.NewStore(cfg.SnapshotFile, res)

	var caster chat.Caster
	if cfg.CastEnabled {
		caster = cast.NewCaster(cfg.CastDiscoveryTimeout)
	} else {
		log.Printf("karaoke-service: casting disabled")
	}

	hub := chat.NewHub()
	go hub.Run()

	router := chat.NewRouter(store, caster, hub.Broadcast)
	srv := chat.NewServer(router, hub, store)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Mount("/", srv.Router())

	log.Printf("karaoke-service listening on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatalf("karaoke-service: %v", err)
	}
}
