// Package httpapi exposes read-only health and queue status over HTTP.
package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/BatmanBruc/bat-bot-freepik/types"
)

// QueueView is the part of the download queue the API reports on.
type QueueView interface {
	Len() int
	Capacity() int
	Active() map[int64]string
	Status(userID int64) types.Status
}

type queueResponse struct {
	Length   int `json:"length"`
	Capacity int `json:"capacity"`
	Active   int `json:"active"`
}

func NewRouter(q QueueView) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", Health)
	router.GET("/queue", func(c *gin.Context) {
		c.JSON(http.StatusOK, queueResponse{
			Length:   q.Len(),
			Capacity: q.Capacity(),
			Active:   len(q.Active()),
		})
	})
	router.GET("/users/:id/status", func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		c.JSON(http.StatusOK, q.Status(id))
	})
	return router
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Serve runs the API on addr until ctx is done.
func Serve(ctx context.Context, addr string, q QueueView) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(q),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Status API listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
