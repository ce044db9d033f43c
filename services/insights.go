package services

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"housing-scraper/models"
	"housing-scraper/utils"
)

// noArea labels listings whose ward has not been backfilled yet.
const noArea = "(unresolved)"

type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

func (s *InsightService) Generate(listings []*models.Listing) *models.MarketReport {
	report := &models.MarketReport{
		ListingsByArea:  make(map[string]int),
		ListingsByRooms: make(map[int]int),
	}

	if len(listings) == 0 {
		return report
	}

	report.TotalListings = len(listings)

	var total, perRoomTotal float64
	var perRoomCount int

	for _, l := range listings {
		area := noArea
		if l.Area != nil && strings.TrimSpace(*l.Area) != "" {
			area = *l.Area
		}
		report.ListingsByArea[area]++
		report.ListingsByRooms[l.Bedrooms]++

		if l.PostalCode == nil || *l.PostalCode == "" {
			report.WithoutPostcode++
		}

		// Price stats (only listings with price > 0)
		if l.PricePerWeek <= 0 {
			continue
		}
		report.PricedListings++
		total += l.PricePerWeek
		if report.Cheapest == nil || l.PricePerWeek < report.Cheapest.PricePerWeek {
			report.Cheapest = l
		}
		if report.MostExpensive == nil || l.PricePerWeek > report.MostExpensive.PricePerWeek {
			report.MostExpensive = l
		}
		if l.Bedrooms > 0 {
			perRoomTotal += l.PricePerWeek / float64(l.Bedrooms)
			perRoomCount++
		}
	}

	if report.PricedListings > 0 {
		report.AveragePrice = round2(total / float64(report.PricedListings))
		report.MinPrice = round2(report.Cheapest.PricePerWeek)
		report.MaxPrice = round2(report.MostExpensive.PricePerWeek)
	}
	if perRoomCount > 0 {
		report.AvgPricePerRoom = round2(perRoomTotal / float64(perRoomCount))
	}

	if s.logger != nil {
		s.logger.Debug("[insights] %d listings, %d priced, %d areas",
			report.TotalListings, report.PricedListings, len(report.ListingsByArea))
	}
	return report
}

func (s *InsightService) Print(w io.Writer, r *models.MarketReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  STUDENT HOUSING MARKET REPORT\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	// Overview
	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Total listings stored  : \033[1m%d\033[0m\n", r.TotalListings)
	fmt.Fprintf(w, "  Listings with a price  : \033[1m%d\033[0m\n", r.PricedListings)
	fmt.Fprintf(w, "  Without postcode       : \033[1m%d\033[0m\n", r.WithoutPostcode)
	fmt.Fprintln(w)

	// Price Stats
	fmt.Fprintf(w, "\033[1;33m  Price Statistics (per week)\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if r.PricedListings > 0 {
		fmt.Fprintf(w, "  Average price    : \033[1;32m£%.2f\033[0m\n", r.AveragePrice)
		fmt.Fprintf(w, "  Minimum price    : \033[1;32m£%.2f\033[0m\n", r.MinPrice)
		fmt.Fprintf(w, "  Maximum price    : \033[1;32m£%.2f\033[0m\n", r.MaxPrice)
		fmt.Fprintf(w, "  Average per room : \033[1;32m£%.2f\033[0m\n", r.AvgPricePerRoom)
	} else {
		fmt.Fprintf(w, "  No price data available\n")
	}
	fmt.Fprintln(w)

	printListing(w, "Cheapest Listing", r.Cheapest, thin)
	printListing(w, "Most Expensive Listing", r.MostExpensive, thin)

	// Listings by bedrooms
	fmt.Fprintf(w, "\033[1;33m  Listings by Bedrooms\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	rooms := make([]int, 0, len(r.ListingsByRooms))
	for n := range r.ListingsByRooms {
		rooms = append(rooms, n)
	}
	sort.Ints(rooms)
	for _, n := range rooms {
		fmt.Fprintf(w, "  %2d bed  %s (%d)\n", n, bar(r.ListingsByRooms[n]), r.ListingsByRooms[n])
	}
	fmt.Fprintln(w)

	// Listings by Area
	fmt.Fprintf(w, "\033[1;33m  Listings by Area\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.ListingsByArea) == 0 {
		fmt.Fprintf(w, "  No area data\n")
	} else {
		// Sort areas by count descending
		type areaCount struct {
			area  string
			count int
		}
		var areas []areaCount
		for area, cnt := range r.ListingsByArea {
			areas = append(areas, areaCount{area, cnt})
		}
		sort.Slice(areas, func(i, j int) bool {
			if areas[i].count != areas[j].count {
				return areas[i].count > areas[j].count
			}
			return areas[i].area < areas[j].area
		})
		for _, ac := range areas {
			fmt.Fprintf(w, "  %-30s %s (%d)\n", truncate(ac.area, 28), bar(ac.count), ac.count)
		}
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

func printListing(w io.Writer, title string, l *models.Listing, thin string) {
	if l == nil {
		return
	}
	fmt.Fprintf(w, "\033[1;33m  %s\033[0m\n", title)
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  %d bed %s, %s\n", l.Bedrooms, l.PropertyType, truncate(l.Road, 40))
	if l.PostalCode != nil {
		fmt.Fprintf(w, "  Postcode : %s\n", *l.PostalCode)
	}
	fmt.Fprintf(w, "  Price    : \033[1;31m£%.2f/week\033[0m\n", l.PricePerWeek)
	fmt.Fprintf(w, "  %s\n", l.URL)
	fmt.Fprintln(w)
}

// bar caps at 40 blocks so large areas don't wrap.
func bar(n int) string {
	if n > 40 {
		n = 40
	}
	return strings.Repeat("█", n)
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
