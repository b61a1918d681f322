package main

import (
	"log"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"horizon_back/authorization"
	"horizon_back/chat"
	"horizon_back/knowledge"
	"horizon_back/storage"
)

func mustLoadEnv() {
	_ = godotenv.Load()
}

func main() {
	mustLoadEnv()

	db, err := storage.OpenDatabaseFromEnv()
	if err != nil {
		log.Fatalf("open database: %v", err)
	}

	r := gin.Default()
	r.Use(cors.Default())

	authModule, err := authorization.RegisterRoutes(r)
	if err != nil {
		log.Fatalf("register auth routes: %v", err)
	}
	guard := authModule.Guard()

	embedder, err := knowledge.NewHTTPEmbedderFromEnv()
	if err != nil {
		log.Fatalf("init embedder: %v", err)
	}
	embedder = knowledge.WithEmbedCacheFromEnv(embedder)

	archive, err := storage.NewSourceArchiveFromEnv()
	if err != nil {
		log.Fatalf("init source archive: %v", err)
	}

	service, err := knowledge.NewService(db, embedder, archive)
	if err != nil {
		log.Fatalf("init knowledge service: %v", err)
	}

	if _, err := knowledge.RegisterRoutes(r, guard, service); err != nil {
		log.Fatalf("register knowledge routes: %v", err)
	}

	searcher, err := knowledge.NewStoreSearcher(db)
	if err != nil {
		log.Fatalf("init similarity searcher: %v", err)
	}
	retriever, err := knowledge.NewRetriever(searcher)
	if err != nil {
		log.Fatalf("init retriever: %v", err)
	}

	model, err := chat.NewClientFromEnv()
	if err != nil {
		log.Fatalf("init chat model client: %v", err)
	}
	generator, err := chat.NewGenerator(embedder, retriever, model)
	if err != nil {
		log.Fatalf("init response generator: %v", err)
	}

	if _, err := chat.RegisterRoutes(r, guard, db, generator); err != nil {
		log.Fatalf("register chat routes: %v", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	if err := r.Run(":" + port); err != nil {
		log.Fatalf("start server: %v", err)
	}
}
