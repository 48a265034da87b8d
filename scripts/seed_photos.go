package main

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math/rand"
	"os"
	"path/filepath"
	"time"
)

// Seeds a watched drop tree with synthetic radar photos so the ingest
// pipeline can be exercised locally without camera hardware. Produces the
// <site>/<DDMMYYYY>/<photo>.jpg layout the cameras write.
//
// Usage: go run seed_photos.go <watch-dir> [photos-per-site]

var sites = []string{"CALLE_10_Z1", "AV_PETAPA", "BLVD_LIBERACION"}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run seed_photos.go <watch-dir> [photos-per-site]")
		os.Exit(1)
	}

	watchDir := os.Args[1]
	perSite := 3
	if len(os.Args) > 2 {
		if _, err := fmt.Sscanf(os.Args[2], "%d", &perSite); err != nil || perSite < 1 {
			fmt.Printf("Error: invalid photos-per-site %q\n", os.Args[2])
			os.Exit(1)
		}
	}

	now := time.Now()
	dateDir := now.Format("02012006")

	total := 0
	for _, site := range sites {
		dir := filepath.Join(watchDir, site, dateDir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Printf("Error creating %s: %v\n", dir, err)
			os.Exit(1)
		}

		for i := 0; i < perSite; i++ {
			stamp := now.Add(time.Duration(i) * time.Minute)
			name := fmt.Sprintf("%s-%d.jpg", stamp.Format("02-01-2006-15-04-05"), i)
			path := filepath.Join(dir, name)
			if err := writePhoto(path); err != nil {
				fmt.Printf("Error writing %s: %v\n", path, err)
				os.Exit(1)
			}
			fmt.Printf("  ✓ %s\n", path)
			total++
		}
	}

	fmt.Printf("\nSeeded %d photos across %d sites under %s\n", total, len(sites), watchDir)
}

// writePhoto emits a noise-filled frame roughly the size of a real radar
// capture. The content is meaningless; only the tree layout matters for
// pipeline testing.
func writePhoto(path string) error {
	const width, height = 1280, 960

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			g := uint8(rand.Intn(256))
			img.Set(x, y, color.RGBA{R: g, G: g, B: g, A: 255})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 70}); err != nil {
		return err
	}
	return f.Close()
}
