package main

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"

	"github.com/workbridge/workbridge-backend/internal/config"
	"github.com/workbridge/workbridge-backend/internal/db"
	"github.com/workbridge/workbridge-backend/internal/handlers"
	"github.com/workbridge/workbridge-backend/internal/middleware"
	"github.com/workbridge/workbridge-backend/internal/realtime"
	"github.com/workbridge/workbridge-backend/internal/services/chatsvc"
	"github.com/workbridge/workbridge-backend/internal/services/razorpay"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal(err)
	}

	rdb := realtime.NewRedis(cfg.RedisAddr, cfg.RedisPassword)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal("redis not reachable:", err)
	}

	hub := realtime.NewHub()
	relay := realtime.NewRelay(hub, rdb)
	go relay.Run(context.Background())

	svc := chatsvc.New(gdb, relay)
	gateway := razorpay.NewService(cfg.GatewayKeyID, cfg.GatewaySecret)

	authH := &handlers.AuthHandler{DB: gdb, JWTSecret: cfg.JWTSecret, Expires: cfg.JWTExpiresMin}
	googleH := &handlers.GoogleOAuthHandler{
		DB:              gdb,
		JWTSecret:       cfg.JWTSecret,
		Expires:         cfg.JWTExpiresMin,
		GoogleClientID:  cfg.GoogleClientID,
		GoogleSecret:    cfg.GoogleSecret,
		GoogleRedirect:  cfg.GoogleRedirect,
		FrontendBaseURL: cfg.FrontendBaseURL,
	}
	onboardH := handlers.NewOnboardingHandler(gdb)
	jobH := handlers.NewJobHandler(gdb, svc)
	chatH := handlers.NewChatHandler(gdb, svc, relay)
	paymentH := handlers.NewPaymentHandler(gdb, gateway, svc)
	disputeH := handlers.NewDisputeHandler(gdb, svc)

	app := fiber.New()

	app.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.FrontendBaseURL,
		AllowMethods:  "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization",
		ExposeHeaders: "Content-Length",
	}))

	api := app.Group("/api")

	// public
	api.Post("/auth/register", authH.Register)
	api.Post("/auth/login", authH.Login)
	api.Post("/auth/logout", authH.Logout)
	api.Get("/auth/google/start", googleH.GoogleStart)
	api.Get("/auth/google/callback", googleH.GoogleCallback)

	// protected (JWT bearer)
	protected := api.Group("/", middleware.JWTBearer(cfg.JWTSecret))

	protected.Get("/me", authH.Me)
	protected.Get("/profile/me", onboardH.GetMyProfile)
	protected.Post("/client/profile", middleware.RequireRoles("client"), onboardH.CreateClientProfile)
	protected.Post("/freelancer/profile", middleware.RequireRoles("freelancer"), onboardH.CreateFreelancerProfile)

	// jobs
	protected.Post("/jobs", middleware.RequireRoles("client"), jobH.CreateJob)
	protected.Get("/jobs", jobH.ListOpenJobs)
	protected.Get("/jobs/mine", middleware.RequireRoles("client"), jobH.MyJobs)
	protected.Get("/jobs/:id", jobH.GetJob)
	protected.Patch("/jobs/:id/status", middleware.RequireRoles("client"), jobH.UpdateJobStatus)

	// chat
	chat := protected.Group("/chat")
	chat.Post("/threads", chatH.CreateOrGetThread)
	chat.Get("/threads", chatH.GetThreads)
	chat.Get("/threads/:id/messages", chatH.GetMessages)
	chat.Post("/threads/:id/messages", chatH.SendMessage)
	chat.Patch("/threads/:id/read", chatH.MarkRead)
	chat.Get("/unread-count", chatH.GetUnreadTotal)
	chat.Post("/threads/:id/disputes", disputeH.CreateFromThread)

	// payments
	protected.Post("/payments/order", middleware.RequireRoles("client"), paymentH.CreateOrder)
	protected.Post("/payments/verify", middleware.RequireRoles("client"), paymentH.Verify)
	protected.Get("/payments", paymentH.ListMine)
	protected.Get("/payments/:id", paymentH.GetPayment)

	// disputes
	protected.Get("/disputes", disputeH.ListMine)
	protected.Get("/admin/disputes", middleware.RequireRoles("admin"), disputeH.AdminList)
	protected.Post("/admin/disputes/:id/resolve", middleware.RequireRoles("admin"), disputeH.AdminResolve)

	// WebSocket endpoint; auth happens inside the handler via ?token=
	app.Get("/ws/chat/:id", websocket.New(chatH.WebSocketHandler(cfg.JWTSecret)))

	log.Fatal(app.Listen(":" + cfg.AppPort))
}
