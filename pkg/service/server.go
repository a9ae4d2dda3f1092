// Package service exposes the agent swarm over HTTP: query and feedback
// endpoints, per-agent statistics, checkpointing, and a live SSE stream of
// domain events.
package service

import (
	"context"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v3"
	fiberadaptor "github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/ranswarm/ranswarm/pkg/agent"
	"github.com/ranswarm/ranswarm/pkg/errors"
	"github.com/ranswarm/ranswarm/pkg/lifecycle"
	"github.com/ranswarm/ranswarm/pkg/qlearning"
	"github.com/ranswarm/ranswarm/pkg/service/sse"
	"github.com/ranswarm/ranswarm/pkg/stores/s3"
)

/*
EngineServer fronts a swarm registry. It is safe for concurrent use: the
registry carries its own lock and each agent serializes its own work.
*/
type EngineServer struct {
	app         *fiber.App
	registry    *agent.Registry
	bus         *lifecycle.MemoryBus
	broker      *sse.Broker
	checkpoints *s3.CheckpointStore
	addr        string
}

// NewEngineServer constructs a server over a registry and its event bus.
// The checkpoint store may be nil when object storage is not configured.
func NewEngineServer(
	registry *agent.Registry,
	bus *lifecycle.MemoryBus,
	checkpoints *s3.CheckpointStore,
	addr string,
) *EngineServer {
	if addr == "" {
		addr = ":3210"
	}

	return &EngineServer{
		app: fiber.New(fiber.Config{
			AppName:      "ranswarm",
			ServerHeader: "RANSwarm-Engine",
		}),
		registry:    registry,
		bus:         bus,
		broker:      sse.NewBroker(),
		checkpoints: checkpoints,
		addr:        addr,
	}
}

// Start wires the routes and blocks serving HTTP.
func (srv *EngineServer) Start() error {
	srv.setupRoutes()

	go srv.forwardEvents()

	return srv.app.Listen(srv.addr, fiber.ListenConfig{DisableStartupMessage: true})
}

func (srv *EngineServer) setupRoutes() {
	srv.app.Use(logger.New(logger.Config{
		// Skip logging for the /events endpoint to reduce noise
		Next: func(c fiber.Ctx) bool {
			return c.Path() == "/events"
		},
	}))

	// The healthcheck middleware answers every GET it sees, so it is
	// mounted on the probe paths only.
	srv.app.Get("/livez", healthcheck.New())
	srv.app.Get("/readyz", healthcheck.New())

	srv.app.Get("/", srv.handleRoot)
	srv.app.Get("/events", srv.handleEvents)
	srv.app.Get("/agents", srv.handleAgents)
	srv.app.Get("/agents/:id/stats", srv.handleAgentStats)
	srv.app.Post("/query", srv.handleQuery)
	srv.app.Post("/feedback", srv.handleFeedback)
	srv.app.Post("/agents/:id/episode", srv.handleCompleteEpisode)
	srv.app.Post("/agents/:id/checkpoint", srv.handleCheckpoint)
	srv.app.Post("/agents/:id/restore", srv.handleRestore)
}

// Shutdown stops the HTTP server and closes the event stream.
func (srv *EngineServer) Shutdown() error {
	srv.broker.Close()
	return srv.app.Shutdown()
}

// forwardEvents pumps domain events from the in-process bus onto the SSE
// broker.
func (srv *EngineServer) forwardEvents() {
	for event := range srv.bus.Subscribe() {
		if err := srv.broker.Broadcast(event); err != nil {
			log.Error("failed to broadcast domain event", "error", err)
		}
	}
}

func (srv *EngineServer) handleRoot(ctx fiber.Ctx) error {
	return ctx.SendString("OK")
}

func (srv *EngineServer) handleEvents(ctx fiber.Ctx) error {
	handler := func(w http.ResponseWriter, r *http.Request) {
		srv.broker.Subscribe(w, r)
	}
	return fiberadaptor.HTTPHandler(http.HandlerFunc(handler))(ctx)
}

func (srv *EngineServer) handleAgents(ctx fiber.Ctx) error {
	return ctx.JSON(srv.registry.Stats())
}

func (srv *EngineServer) handleAgentStats(ctx fiber.Ctx) error {
	fa, err := srv.registry.Get(ctx.Params("id"))
	if err != nil {
		return srv.respondError(ctx, err)
	}

	return ctx.JSON(fa.Stats())
}

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Feature    string `json:"feature"`
	Text       string `json:"text"`
	QueryType  string `json:"queryType"`
	Complexity string `json:"complexity"`
}

func (srv *EngineServer) handleQuery(ctx fiber.Ctx) error {
	var req QueryRequest
	if err := ctx.Bind().Body(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body: " + err.Error(),
		})
	}

	fa, err := srv.registry.Route(req.Feature)
	if err != nil {
		return srv.respondError(ctx, err)
	}

	response, err := fa.HandleQuery(ctx.RequestCtx(), agent.Query{
		Text:       req.Text,
		QueryType:  req.QueryType,
		Complexity: req.Complexity,
	})
	if err != nil {
		return srv.respondError(ctx, err)
	}

	return ctx.JSON(response)
}

// FeedbackRequest is the body of POST /feedback. The reward components
// follow the documented formula; the engine reduces them to a scalar.
type FeedbackRequest struct {
	Feature          string  `json:"feature"`
	Rating           float64 `json:"rating"`
	Resolved         bool    `json:"resolved"`
	LatencyPenalty   float64 `json:"latencyPenalty"`
	ConsultationCost float64 `json:"consultationCost"`
	NoveltyBonus     float64 `json:"noveltyBonus"`
}

func (srv *EngineServer) handleFeedback(ctx fiber.Ctx) error {
	var req FeedbackRequest
	if err := ctx.Bind().Body(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body: " + err.Error(),
		})
	}

	fa, err := srv.registry.Route(req.Feature)
	if err != nil {
		return srv.respondError(ctx, err)
	}

	reward := qlearning.RewardFromRating(req.Rating)
	if req.Resolved {
		reward.ResolutionSuccess = 0.5
	}
	reward = reward.WithLatency(req.LatencyPenalty).
		WithConsultationCost(req.ConsultationCost).
		WithNovelty(req.NoveltyBonus)

	if err := fa.Feedback(reward); err != nil {
		return srv.respondError(ctx, err)
	}

	return ctx.JSON(fiber.Map{"reward": reward.Total()})
}

func (srv *EngineServer) handleCompleteEpisode(ctx fiber.Ctx) error {
	fa, err := srv.registry.Get(ctx.Params("id"))
	if err != nil {
		return srv.respondError(ctx, err)
	}

	trajectory := fa.CompleteEpisode()
	if trajectory == nil {
		return ctx.JSON(fiber.Map{"completed": false})
	}

	return ctx.JSON(fiber.Map{
		"completed":        true,
		"trajectoryId":     trajectory.ID,
		"steps":            len(trajectory.Steps),
		"cumulativeReward": trajectory.CumulativeReward,
	})
}

func (srv *EngineServer) handleCheckpoint(ctx fiber.Ctx) error {
	if srv.checkpoints == nil {
		return ctx.Status(fiber.StatusNotImplemented).JSON(fiber.Map{
			"error": "checkpoint storage not configured",
		})
	}

	fa, err := srv.registry.Get(ctx.Params("id"))
	if err != nil {
		return srv.respondError(ctx, err)
	}

	key, err := srv.checkpoints.Save(context.Background(), fa.Checkpoint())
	if err != nil {
		return srv.respondError(ctx, err)
	}

	return ctx.JSON(fiber.Map{"key": key})
}

func (srv *EngineServer) handleRestore(ctx fiber.Ctx) error {
	if srv.checkpoints == nil {
		return ctx.Status(fiber.StatusNotImplemented).JSON(fiber.Map{
			"error": "checkpoint storage not configured",
		})
	}

	fa, err := srv.registry.Get(ctx.Params("id"))
	if err != nil {
		return srv.respondError(ctx, err)
	}

	checkpoint, err := srv.checkpoints.Load(context.Background(), fa.ID())
	if err != nil {
		return srv.respondError(ctx, err)
	}

	fa.Restore(checkpoint)
	return ctx.JSON(fiber.Map{"restored": checkpoint.CreatedAt})
}

// respondError maps engine errors onto HTTP statuses, keeping the typed
// code in the body so clients can switch on it.
func (srv *EngineServer) respondError(ctx fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError

	if engineErr, ok := err.(*errors.EngineError); ok {
		switch engineErr.Code {
		case errors.ErrAgentNotFound.Code, errors.ErrCheckpointNotFound.Code:
			status = fiber.StatusNotFound
		case errors.ErrAgentBusy.Code, errors.ErrInvalidTransition.Code:
			status = fiber.StatusConflict
		case errors.ErrBoundedValue.Code, errors.ErrDimensionMismatch.Code:
			status = fiber.StatusBadRequest
		}

		return ctx.Status(status).JSON(engineErr)
	}

	return ctx.Status(status).JSON(fiber.Map{"error": err.Error()})
}
