// Package api serves stored listings and live area lookups over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"housing-scraper/geocode"
	"housing-scraper/models"
	"housing-scraper/services"
	"housing-scraper/storage"
	"housing-scraper/utils"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// ListingReader is the read side of the listing store.
type ListingReader interface {
	ListListings(ctx context.Context, limit int) ([]*models.Listing, error)
	GetListing(ctx context.Context, id int64) (*models.Listing, error)
	SearchListings(ctx context.Context, prefix, sort string) ([]*models.Listing, error)
	ListPostcodes(ctx context.Context) ([]string, error)
	FetchAll(ctx context.Context) ([]*models.Listing, error)
}

type Handler struct {
	Store    ListingReader
	Resolver services.AreaResolver
	Insights *services.InsightService
	Logger   *utils.Logger
}

func NewHandler(store ListingReader, resolver services.AreaResolver, logger *utils.Logger) *Handler {
	return &Handler{
		Store:    store,
		Resolver: resolver,
		Insights: services.NewInsightService(logger),
		Logger:   logger,
	}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/listings", h.list)                  // GET /api/listings?limit=
	rg.GET("/listings/search", h.search)         // GET /api/listings/search?postcode=&sort=
	rg.GET("/listings/:id", h.getByID)           // GET /api/listings/:id
	rg.GET("/postcodes", h.postcodes)            // GET /api/postcodes
	rg.GET("/areas/:postcode", h.areaByPostcode) // GET /api/areas/:postcode
	rg.GET("/report", h.report)                  // GET /api/report
}

func (h *Handler) list(c *gin.Context) {
	limit := parseInt(c.Query("limit"), defaultLimit)
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}

	items, err := h.Store.ListListings(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err, "list failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(items), "limit": limit, "items": nonNil(items)})
}

func (h *Handler) getByID(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	l, err := h.Store.GetListing(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "get failed")
		return
	}
	c.JSON(http.StatusOK, l)
}

func (h *Handler) search(c *gin.Context) {
	items, err := h.Store.SearchListings(c.Request.Context(), c.Query("postcode"), c.DefaultQuery("sort", storage.SortPriceAsc))
	if err != nil {
		h.fail(c, err, "search failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(items), "items": nonNil(items)})
}

func (h *Handler) postcodes(c *gin.Context) {
	pcs, err := h.Store.ListPostcodes(c.Request.Context())
	if err != nil {
		h.fail(c, err, "postcodes failed")
		return
	}
	if pcs == nil {
		pcs = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(pcs), "postcodes": pcs})
}

func (h *Handler) areaByPostcode(c *gin.Context) {
	pc := strings.TrimSpace(c.Param("postcode"))
	ward, err := h.Resolver.Reverse(c.Request.Context(), pc)
	if err != nil {
		h.fail(c, err, "lookup failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"postcode": geocode.NormalizePostcode(pc), "area": ward})
}

func (h *Handler) report(c *gin.Context) {
	listings, err := h.Store.FetchAll(c.Request.Context())
	if err != nil {
		h.fail(c, err, "report failed")
		return
	}
	c.JSON(http.StatusOK, h.Insights.Generate(listings))
}

// fail maps domain errors to HTTP statuses.
func (h *Handler) fail(c *gin.Context, err error, msg string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrListingNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, storage.ErrInvalidSort):
		status, msg = http.StatusBadRequest, "sort must be price_asc or price_desc"
	case errors.Is(err, geocode.ErrInvalidPostcode):
		status, msg = http.StatusNotFound, "invalid postcode"
	case errors.Is(err, geocode.ErrNotFound):
		status, msg = http.StatusNotFound, "no match"
	case errors.Is(err, geocode.ErrNetwork), errors.Is(err, geocode.ErrLookupFailed):
		status = http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status >= http.StatusInternalServerError && h.Logger != nil {
		h.Logger.Error("[api] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": msg})
}

func nonNil(items []*models.Listing) []*models.Listing {
	if items == nil {
		return []*models.Listing{}
	}
	return items
}

func parseInt(s string, def int) int {
	if strings.TrimSpace(s) == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
