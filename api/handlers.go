package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"streamlet-api/domain"
)

// Register wires up all API routes on the provided Echo instance. deduper may
// be nil, in which case Idempotency-Key headers are ignored.
func Register(e *echo.Echo, todos Todos, solver Solver, deduper Deduper, logger *log.Logger, appName string) {
	e.JSONSerializer = jsonSerializer{}
	e.Use(RequestMetricsMiddleware(logger))
	e.Use(middleware.BodyLimit(requestBodyLimit))

	e.GET("/", hello(appName))
	e.GET("/healthz", healthz())
	e.POST("/todos", createTodo(todos, deduper, logger))
	e.GET("/todos", listTodos(todos))
	e.GET("/todos/:id", getTodo(todos, logger))
	e.PATCH("/todos/:id", patchTodo(todos, logger))
	e.DELETE("/todos/:id", deleteTodo(todos, logger))
	e.POST("/echo", echoBody())
	e.POST("/solve", solve(solver, logger))
}

func hello(appName string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.String(http.StatusOK, fmt.Sprintf("Hello %s!", appName))
	}
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func todoLocation(id string) string {
	return "/todos/" + id
}

func createTodo(todos Todos, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		metrics := metricsFrom(c)

		var req domain.CreateTodoRequest
		if err := decodeBody(c, &req); err != nil {
			return bodyError(c, err)
		}
		if req.Title == nil || req.Description == nil {
			metrics.SetErrorStage("decode_body")
			return c.String(http.StatusBadRequest, "title and description are required")
		}

		key := strings.TrimSpace(c.Request().Header.Get(headerIdempotencyKey))
		if deduper == nil {
			key = ""
		}
		if key != "" {
			claimed, existing, err := deduper.Claim(ctx, key)
			switch {
			case err != nil:
				logger.WithError(err).Warn("idempotency claim failed; creating without deduplication")
				key = ""
			case !claimed && existing == "":
				metrics.SetErrorStage("idempotency_pending")
				return c.String(http.StatusConflict, msgIdempotencyPending)
			case !claimed:
				c.Response().Header().Set(echo.HeaderLocation, todoLocation(existing))
				return c.NoContent(http.StatusCreated)
			}
		}

		todo, err := todos.Create(ctx, req)
		if err != nil {
			if key != "" {
				if rerr := deduper.Release(ctx, key); rerr != nil {
					logger.Errorf("idempotency release failed, err: %v, key: %s", rerr, key)
				}
			}
			metrics.SetErrorStage("store")
			logger.WithError(err).Error("create todo failed")
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if key != "" {
			if err := deduper.Complete(ctx, key, todo.ID.String()); err != nil {
				logger.Errorf("idempotency complete failed, err: %v, key: %s", err, key)
			}
		}

		c.Response().Header().Set(echo.HeaderLocation, todoLocation(todo.ID.String()))
		return c.NoContent(http.StatusCreated)
	}
}

func listTodos(todos Todos) echo.HandlerFunc {
	return func(c echo.Context) error {
		list := todos.List(c.Request().Context())
		metricsFrom(c).SetTodosReturned(len(list))
		return c.JSON(http.StatusOK, list)
	}
}

func getTodo(todos Todos, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := parseID(c)
		if !ok {
			return c.String(http.StatusNotFound, msgTodoNotFound)
		}
		todo, err := todos.Get(c.Request().Context(), id)
		if err != nil {
			return storeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, todo)
	}
}

func patchTodo(todos Todos, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := parseID(c)
		if !ok {
			return c.String(http.StatusNotFound, msgTodoNotFound)
		}
		var upd domain.UpdateTodoRequest
		if err := decodeBody(c, &upd); err != nil {
			return bodyError(c, err)
		}
		todo, err := todos.Patch(c.Request().Context(), id, upd)
		if err != nil {
			return storeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, todo)
	}
}

func deleteTodo(todos Todos, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := parseID(c)
		if !ok {
			return c.String(http.StatusNotFound, msgTodoNotFound)
		}
		todo, err := todos.Delete(c.Request().Context(), id)
		if err != nil {
			return storeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, todo)
	}
}

func echoBody() echo.HandlerFunc {
	return func(c echo.Context) error {
		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return bodyError(c, err)
		}
		return c.String(http.StatusOK, "Echo: "+string(body))
	}
}

func solve(solver Solver, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		out, err := solver.Solve(c.Request().Context())
		if err != nil {
			metricsFrom(c).SetErrorStage("upstream")
			logger.WithError(err).Error("solve failed")
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSONBlob(http.StatusOK, out)
	}
}

// parseID reads the :id path parameter. Unparsable ids can never match a
// stored todo, so callers answer them with 404.
func parseID(c echo.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		metricsFrom(c).SetErrorStage("invalid_id")
		return uuid.Nil, false
	}
	return id, true
}

func storeError(c echo.Context, logger *log.Logger, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		metricsFrom(c).SetErrorStage("not_found")
		return c.String(http.StatusNotFound, msgTodoNotFound)
	}
	metricsFrom(c).SetErrorStage("store")
	logger.WithError(err).Error("todo store failure")
	return c.String(http.StatusInternalServerError, err.Error())
}

var errMalformedJSON = errors.New("request body is not a single JSON value")

// decodeBody unmarshals the whole request body, so trailing data after the
// JSON value is rejected. The size cap comes from the BodyLimit middleware.
func decodeBody(c echo.Context, v any) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return err
	}
	if !sonic.Valid(body) {
		return errMalformedJSON
	}
	return sonic.ConfigStd.Unmarshal(body, v)
}

// bodyError answers a failed body read or decode: 413 when the size cap was
// hit, 400 otherwise.
func bodyError(c echo.Context, err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code == http.StatusRequestEntityTooLarge {
		metricsFrom(c).SetErrorStage("body_too_large")
		return c.String(http.StatusRequestEntityTooLarge, msgBodyTooLarge)
	}
	metricsFrom(c).SetErrorStage("decode_body")
	return c.String(http.StatusBadRequest, msgInvalidBody)
}
