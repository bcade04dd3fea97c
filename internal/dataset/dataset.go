// Package dataset ships the built-in demo data used by `oslab index seed`:
// a small retail inventory and a set of US city landmarks for the geo search
// examples. Having data baked in means every search mode can be exercised
// against a fresh cluster without hunting for a file to upload.
package dataset

import (
	"context"
	"fmt"
	"strconv"

	"github.com/machzqcq/oslab-go/internal/osclient"
)

// Product is one row of the demo inventory.
type Product struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
	Rating      float64 `json:"rating"`
	Description string  `json:"description"`
}

// Products returns the demo inventory. The slice is freshly allocated so
// callers may mutate it.
func Products() []Product {
	out := make([]Product, len(products))
	copy(out, products)
	return out
}

var products = []Product{
	{1, "Wireless Bluetooth Headphones", "Electronics", 79.99, 150, 4.5, "High-quality wireless headphones with noise cancellation and 30-hour battery life"},
	{2, "USB-C Charging Cable", "Electronics", 12.99, 500, 4.2, "Durable 6-foot USB-C cable compatible with phones, tablets, and laptops"},
	{3, "4K Webcam", "Electronics", 149.99, 80, 4.7, "Professional 4K webcam with auto-focus and built-in microphone"},
	{4, "Mechanical Keyboard", "Electronics", 129.99, 120, 4.6, "RGB mechanical keyboard with customizable switches and programmable keys"},
	{5, "Portable SSD 1TB", "Electronics", 99.99, 200, 4.8, "Fast portable solid-state drive with USB 3.1 for quick file transfers"},
	{6, "Wireless Mouse", "Electronics", 29.99, 300, 4.3, "Ergonomic wireless mouse with precision tracking and long battery life"},
	{7, "Laptop Stand", "Electronics", 39.99, 250, 4.4, "Adjustable aluminum laptop stand for improved ergonomics"},
	{8, "Monitor Light Bar", "Electronics", 69.99, 100, 4.5, "Auto-dimming monitor light bar that reduces eye strain"},
	{9, "Wireless Charging Pad", "Electronics", 34.99, 180, 4.2, "Fast wireless charging pad compatible with all Qi-enabled devices"},
	{10, "Smart Power Strip", "Electronics", 44.99, 220, 4.4, "WiFi-enabled smart power strip with 4 outlets and USB charging"},
	{11, "Notebook Set", "Office Supplies", 14.99, 400, 4.1, "Pack of 3 premium ruled notebooks for note-taking"},
	{12, "Pen Set", "Office Supplies", 19.99, 350, 4.0, "Professional ballpoint pen set with smooth ink flow"},
	{13, "Desk Organizer", "Office Supplies", 24.99, 280, 4.3, "Wooden desk organizer with compartments for supplies"},
	{14, "File Folder Set", "Office Supplies", 9.99, 600, 3.9, "Set of 10 colorful file folders for document organization"},
	{15, "Desk Lamp", "Office Supplies", 49.99, 160, 4.5, "LED desk lamp with adjustable brightness and color temperature"},
	{16, "Document Scanner", "Office Supplies", 89.99, 75, 4.6, "Compact portable document scanner for digitizing papers"},
	{17, "Coffee Maker", "Home & Living", 59.99, 110, 4.4, "Automatic coffee maker with programmable timer and thermal carafe"},
	{18, "Air Purifier", "Home & Living", 79.99, 95, 4.6, "HEPA air purifier for rooms up to 300 square feet"},
	{19, "White Noise Machine", "Home & Living", 29.99, 170, 4.3, "Compact white noise machine with 10 soothing sounds"},
	{20, "Desk Plant", "Home & Living", 15.99, 320, 4.5, "Low-maintenance indoor plant with attractive ceramic pot"},
	{21, "Standing Desk", "Furniture", 299.99, 45, 4.7, "Electric adjustable standing desk with memory presets"},
	{22, "Ergonomic Office Chair", "Furniture", 249.99, 60, 4.6, "High-back ergonomic office chair with lumbar support"},
	{23, "Bookshelf", "Furniture", 79.99, 85, 4.3, "5-shelf wooden bookshelf for office storage"},
	{24, "Filing Cabinet", "Furniture", 119.99, 55, 4.4, "4-drawer metal filing cabinet with lock"},
	{25, "Conference Table", "Furniture", 499.99, 20, 4.8, "Large conference table for meetings"},
	{26, "Phone Stand", "Accessories", 14.99, 380, 4.2, "Adjustable phone stand for any smartphone"},
	{27, "Monitor Stand", "Accessories", 44.99, 200, 4.4, "Monitor stand with storage drawer underneath"},
	{28, "Mouse Pad", "Accessories", 16.99, 450, 4.2, "Large ergonomic mouse pad with wrist support"},
	{29, "Headphone Stand", "Accessories", 17.99, 310, 4.1, "Minimalist aluminum headphone stand"},
	{30, "USB Hub", "Accessories", 32.99, 220, 4.5, "7-port USB 3.0 hub for expanded connectivity"},
}

// ProductMapping returns the index body for the inventory index. name is a
// search_as_you_type field so the suggestion endpoint works out of the box;
// description stays text for full-text and neural search.
func ProductMapping() map[string]any {
	return map[string]any{
		"settings": map[string]any{
			"index": map[string]any{
				"number_of_shards":   1,
				"number_of_replicas": 0,
			},
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				"id":       map[string]any{"type": "long"},
				"name":     map[string]any{"type": "search_as_you_type"},
				"category": map[string]any{"type": "keyword"},
				"price":    map[string]any{"type": "double"},
				"stock":    map[string]any{"type": "long"},
				"rating":   map[string]any{"type": "double"},
				"description": map[string]any{
					"type": "text",
					"fields": map[string]any{
						"keyword": map[string]any{"type": "keyword", "ignore_above": 256},
					},
				},
			},
		},
	}
}

// SeedProducts creates the inventory index (if missing) and indexes the demo
// products. pipeline, when non-empty, is applied to every document so seeded
// data can be embedded server-side.
func SeedProducts(ctx context.Context, client *osclient.Client, index, pipeline string) (int, error) {
	if _, err := client.EnsureIndex(ctx, index, ProductMapping()); err != nil {
		return 0, fmt.Errorf("dataset: ensure index %s: %w", index, err)
	}

	for _, p := range products {
		if err := indexDoc(ctx, client, index, strconv.Itoa(p.ID), p, pipeline); err != nil {
			return 0, fmt.Errorf("dataset: index product %d: %w", p.ID, err)
		}
	}
	if err := client.Refresh(ctx, index); err != nil {
		return 0, fmt.Errorf("dataset: refresh %s: %w", index, err)
	}
	return len(products), nil
}
