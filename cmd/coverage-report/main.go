package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"github.com/mr1hm/go-shelter-coverage/internal/analysis"
	"github.com/mr1hm/go-shelter-coverage/internal/config"
	"github.com/mr1hm/go-shelter-coverage/internal/geo"
	"github.com/mr1hm/go-shelter-coverage/internal/ingestion"
	"github.com/mr1hm/go-shelter-coverage/internal/logging"
	"github.com/mr1hm/go-shelter-coverage/internal/models"
	"github.com/mr1hm/go-shelter-coverage/internal/repository"
)

type Options struct {
	DB     string   `long:"db" description:"SQLite database path. Defaults to DB_PATH"`
	Lat    *float64 `long:"lat" description:"Circle center latitude"`
	Lng    *float64 `long:"lng" description:"Circle center longitude"`
	Radius *float64 `short:"r" long:"radius" description:"Circle radius in meters"`
	South  *float64 `long:"south" description:"Bounding box south latitude"`
	West   *float64 `long:"west" description:"Bounding box west longitude"`
	North  *float64 `long:"north" description:"Bounding box north latitude"`
	East   *float64 `long:"east" description:"Bounding box east longitude"`
	Load   bool     `long:"load" description:"Load the configured sources into the database first"`
	Pretty bool     `short:"p" long:"pretty" description:"Indent JSON output"`
}

type report struct {
	Shape    geo.ShapeKind         `json:"shape"`
	Areas    int                   `json:"areas"`
	Shelters int                   `json:"shelters"`
	Result   models.AnalysisResult `json:"result"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	shape, err := opts.shape()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if opts.DB != "" {
		cfg.DB.Path = opts.DB
	}
	// stdout carries the report
	slog.SetDefault(logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format))

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()

	if opts.Load {
		mgr := ingestion.NewManager(cfg, db, nil)
		if err := mgr.Load(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading datasets: %v\n", err)
			os.Exit(1)
		}
		mgr.Stop()
	}

	ds, err := ingestion.Snapshot(ctx, db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading datasets: %v\n", err)
		os.Exit(1)
	}

	projector := geo.UTMProjector{Zone: cfg.Projection.UTMZone, Northern: cfg.Projection.Northern}
	res := analysis.NewEngine(projector).Aggregate(ds.Areas, ds.Shelters, shape)
	slog.Info("analysis complete", "shape", shape.Kind(), "areas_intersected", res.AreasIntersected)

	enc := json.NewEncoder(os.Stdout)
	if opts.Pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(report{
		Shape:    shape.Kind(),
		Areas:    len(ds.Areas),
		Shelters: len(ds.Shelters),
		Result:   res,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
		os.Exit(1)
	}
}

// shape builds a circle from --lat/--lng/--radius or a box from
// --south/--west/--north/--east. Partial or mixed sets are rejected.
func (o Options) shape() (geo.Shape, error) {
	circle := []*float64{o.Lat, o.Lng, o.Radius}
	box := []*float64{o.South, o.West, o.North, o.East}

	var shape geo.Shape
	switch {
	case anySet(circle) && anySet(box):
		return nil, errors.New("use either --lat/--lng/--radius or --south/--west/--north/--east, not both")
	case anySet(circle):
		if !allSet(circle) {
			return nil, errors.New("a circle needs all of --lat, --lng and --radius")
		}
		shape = geo.Circle{Center: geo.LatLng{Lat: *o.Lat, Lng: *o.Lng}, RadiusMeters: *o.Radius}
	case anySet(box):
		if !allSet(box) {
			return nil, errors.New("a bounding box needs all of --south, --west, --north and --east")
		}
		shape = geo.NewBoundedRegion(geo.LatLng{Lat: *o.South, Lng: *o.West}, geo.LatLng{Lat: *o.North, Lng: *o.East})
	default:
		return nil, errors.New("either --lat/--lng/--radius or --south/--west/--north/--east is required")
	}

	if err := geo.Validate(shape); err != nil {
		return nil, err
	}
	return shape, nil
}

func anySet(vals []*float64) bool {
	for _, v := range vals {
		if v != nil {
			return true
		}
	}
	return false
}

func allSet(vals []*float64) bool {
	for _, v := range vals {
		if v == nil {
			return false
		}
	}
	return true
}
