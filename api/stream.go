package api

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"example.com/keeptend/views"
)

// streamView pushes a live view as server-sent events. The first event is
// the current result.
func (s *Server) streamView(c *gin.Context) {
	label := c.Param("label")

	var (
		ch     <-chan interface{}
		cancel func()
		err    error
	)
	ctx := c.Request.Context()
	switch {
	case label == views.LabelPlantsWithLastMessage:
		ch, cancel, err = subscribe(ctx, s.live, views.PlantsWithLastMessage())
	case label == views.LabelAllPlants:
		ch, cancel, err = subscribe(ctx, s.live, views.AllPlants())
	case strings.HasPrefix(label, "chatMessages-"):
		ch, cancel, err = subscribe(ctx, s.live, views.MessagesByPlant(strings.TrimPrefix(label, "chatMessages-")))
	case strings.HasPrefix(label, "plant-"):
		ch, cancel, err = subscribe(ctx, s.live, views.PlantByID(strings.TrimPrefix(label, "plant-")))
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown view " + label})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	defer cancel()

	log.Debug().Str("view", label).Msg("View stream opened")
	c.Stream(func(w io.Writer) bool {
		select {
		case result := <-ch:
			c.SSEvent(label, result)
			return true
		case <-ctx.Done():
			return false
		}
	})
	log.Debug().Str("view", label).Msg("View stream closed")
}

// subscribe forwards view results into a channel holding only the latest
// undelivered result
func subscribe[T any](ctx context.Context, live *views.Live, v views.View[T]) (<-chan interface{}, func(), error) {
	ch := make(chan interface{}, 1)
	cancel, err := views.Subscribe(ctx, live, v, func(result T) {
		for {
			select {
			case ch <- result:
				return
			default:
			}
			select {
			case <-ch:
			default:
			}
		}
	})
	if err != nil {
		return nil, nil, err
	}
	return ch, cancel, nil
}
