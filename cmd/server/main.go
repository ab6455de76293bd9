// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/leadpilot/crm-backend/internal/controller"
	"github.com/leadpilot/crm-backend/internal/db"
	"github.com/leadpilot/crm-backend/internal/dispatch"
	"github.com/leadpilot/crm-backend/internal/handler"
	"github.com/leadpilot/crm-backend/internal/queue"
	"github.com/leadpilot/crm-backend/internal/repository"
	"github.com/leadpilot/crm-backend/internal/service"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, relying on OS environment variables")
	}

	conn, err := db.Connect()
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	runRepo := &repository.RunRepository{DB: conn}
	runItemRepo := &repository.RunItemRepository{DB: conn}
	leadRepo := &repository.LeadRepository{DB: conn}
	templateRepo := &repository.TemplateRepository{DB: conn}
	commRepo := &repository.CommunicationRepository{DB: conn}

	webhookToken := os.Getenv("WEBHOOK_TOKEN")
	if webhookToken == "" {
		webhookToken = uuid.NewString()
		log.Println("⚠️ WEBHOOK_TOKEN not set, generated one for this process:", webhookToken)
	}

	engine := dispatch.NewHTTPEngineClient(
		os.Getenv("DISPATCHER_ENGINE_URL"),
		webhookToken,
	)

	var events queue.Publisher
	if amqpURL := os.Getenv("AMQP_URL"); amqpURL != "" {
		amqpQueue, err := queue.NewAMQPQueue(amqpURL)
		if err != nil {
			log.Fatalf("amqp: %v", err)
		}
		defer amqpQueue.Close()
		events = amqpQueue
	} else {
		log.Println("⚠️ AMQP_URL not set, using in-memory event queue")
		memQueue := queue.NewInMemoryQueue()
		queue.StartNotificationSubscriber(memQueue)
		events = memQueue
	}

	materializer := &service.Materializer{
		UseAI: os.Getenv("USE_AI_PERSONALIZATION") == "true",
	}

	runService := &service.RunService{
		RunRepo:      runRepo,
		RunItemRepo:  runItemRepo,
		LeadRepo:     leadRepo,
		TemplateRepo: templateRepo,
		Materializer: materializer,
		Engine:       engine,
		CallbackURL:  os.Getenv("WEBHOOK_CALLBACK_URL"),
		WebhookToken: webhookToken,
	}

	reconcileService := &service.ReconcileService{
		RunRepo:     runRepo,
		RunItemRepo: runItemRepo,
		LeadRepo:    leadRepo,
		CommRepo:    commRepo,
		Events:      events,
	}

	runController := &controller.RunController{
		RunService: runService,
	}

	webhookHandler := handler.NewWebhookHandler(reconcileService, webhookToken)

	r := chi.NewRouter()

	// Run routes
	r.Post("/runs", runController.CreateRun)
	r.Get("/runs", runController.ListRuns)
	r.Get("/runs/{id}", runController.GetRun)
	r.Post("/runs/{id}/prepare", runController.PrepareRun)
	r.Post("/runs/{id}/dispatch", runController.DispatchRun)
	r.Post("/runs/{id}/preview", runController.PreviewMessage)

	// Dispatcher engine callback
	r.Post("/webhooks/dispatcher", webhookHandler.HandleDispatcherWebhook)

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	log.Println("🚀 Server running on", addr)
	log.Fatal(http.ListenAndServe(addr, r))
}
