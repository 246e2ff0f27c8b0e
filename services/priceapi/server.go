package priceapi

import (
	"errors"
	"net/http"
	"strconv"

	"allblue-backend/lib/cardid"

	"github.com/gin-gonic/gin"
)

// NewRouter exposes the service over plain JSON GET endpoints.
func NewRouter(s Service) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), corsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/price/:card_id", func(c *gin.Context) {
		raw := c.Param("card_id")

		var explicit *int
		if vq := c.Query("v"); vq != "" {
			if n, err := strconv.Atoi(vq); err == nil {
				explicit = &n
			}
		}

		res, err := s.Price(c.Request.Context(), raw, explicit)
		if errors.Is(err, cardid.ErrInvalidID) {
			// malformed ids are a caller mistake reported in-band, the way
			// legacy clients expect it
			c.JSON(http.StatusOK, gin.H{"card_id": raw, "error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"card_id": raw, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, res)
	})

	router.GET("/history/don/:name", func(c *gin.Context) {
		res, err := s.DonHistory(c.Request.Context(), c.Param("name"), limitQuery(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, res)
	})

	router.GET("/history/sealed/:name", func(c *gin.Context) {
		res, err := s.SealedHistory(c.Request.Context(), c.Param("name"), limitQuery(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, res)
	})

	// the param route coexists with the static don/sealed segments above;
	// static children take priority in the route tree
	router.GET("/history/:card_id", func(c *gin.Context) {
		res, err := s.History(c.Request.Context(), c.Param("card_id"), limitQuery(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, res)
	})

	router.GET("/prices/dons", func(c *gin.Context) {
		res, err := s.Dons(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, res)
	})

	router.GET("/prices/sealed", func(c *gin.Context) {
		res, err := s.Sealed(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, res)
	})

	router.GET("/decks", func(c *gin.Context) {
		raw, err := s.Decks(c.Request.Context())
		if errors.Is(err, ErrNoDecks) {
			c.JSON(http.StatusOK, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "application/json", raw)
	})

	return router
}

func limitQuery(c *gin.Context) int {
	n, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		return 0
	}
	return n
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "*")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
