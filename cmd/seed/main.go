// Command seed wipes and refills the reservations table with deterministic
// demo data: a handful of rider/driver accounts and a spread of reservations
// across every status and kind.
package main

import (
	"context"
	"database/sql"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"curbside/internal/buildinfo"
	"curbside/internal/clock"
	"curbside/internal/config"
	"curbside/internal/logging"
	"curbside/internal/model"
	"curbside/internal/store"
)

type seedUser struct {
	name string
	role string
}

var seedUsers = []seedUser{
	{"Ryan Bezman", "rider"},
	{"Matthew Bezman", "rider"},
	{"Terence Bezman", "rider"},
	{"Steve Bezman", "driver"},
	{"Amrit Singh", "driver"},
	{"Steve Matthews", "driver"},
}

var rideClasses = []model.RideClass{
	model.RideClassEconomy,
	model.RideClassXL,
	model.RideClassLuxury,
	model.RideClassLuxurySUV,
}

var kinds = []model.Kind{model.KindImmediate, model.KindScheduled, model.KindPackage}

var locationPairs = [][2]string{
	{"JFK Airport Terminal 4", "Times Square, Manhattan"},
	{"Penn Station, Manhattan", "LaGuardia Airport Terminal B"},
	{"Grand Central Terminal", "Brooklyn Bridge Park"},
	{"Prospect Park, Brooklyn", "Yankee Stadium, Bronx"},
	{"Barclays Center, Brooklyn", "Columbia University, Manhattan"},
	{"Roosevelt Field Mall, Garden City", "Long Beach Boardwalk"},
	{"Northwell Health, Manhasset", "UBS Arena, Elmont"},
	{"Nassau Coliseum, Uniondale", "Jones Beach State Park"},
	{"Atlantic Terminal, Brooklyn", "Citi Field, Queens"},
	{"Flushing Main St, Queens", "Wall Street, Manhattan"},
	{"Astoria Park, Queens", "Chelsea Market, Manhattan"},
	{"Forest Hills, Queens", "Bryant Park, Manhattan"},
}

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid config", "err", err)
		os.Exit(1)
	}
	logger.Info("seeding reservations", buildinfo.Fields()...)
	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required; set it in .env or the environment")
		os.Exit(1)
	}

	pg, err := store.NewPostgres(cfg.DatabaseURL, clock.NewSystem(), nil)
	if err != nil {
		logger.Error("connect failed", "err", err)
		os.Exit(1)
	}
	if err := pg.MigrateDir("db/migrations"); err != nil {
		logger.Error("migrate failed", "err", err)
		os.Exit(1)
	}

	// Raw handle for the backdated fixture inserts the store API refuses.
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("open failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `DELETE FROM reservations`); err != nil {
		logger.Error("wipe failed", "err", err)
		os.Exit(1)
	}

	created := 0
	riderIndex := 0
	for _, u := range seedUsers {
		id := uuid.New().String()
		logger.Info("seed user", "name", u.name, "role", u.role, "id", id)
		if u.role != "rider" {
			continue
		}
		riderIndex++
		for _, row := range buildRows(id, riderIndex) {
			var canceledAt any
			if row.canceledAt != nil {
				canceledAt = *row.canceledAt
			}
			_, err := db.ExecContext(ctx, `INSERT INTO reservations
				(id, owner_id, kind, status, ride_class, pickup_label, dropoff_label, scheduled_at, created_at, canceled_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
				uuid.New(), row.ownerID, string(row.kind), string(row.status), string(row.class),
				row.pickup, row.dropoff, row.scheduledAt, row.createdAt, canceledAt)
			if err != nil {
				logger.Error("insert failed", "err", err)
				os.Exit(1)
			}
			created++
		}
	}

	logger.Info("seed complete", "users", len(seedUsers), "reservations", created)
}

type seedRow struct {
	ownerID         string
	kind            model.Kind
	status          model.Status
	class           model.RideClass
	pickup, dropoff string
	scheduledAt     time.Time
	createdAt       time.Time
	canceledAt      *time.Time
}

// buildRows produces 16 reservations for one rider, rotated across location
// pairs, ride classes, kinds, and all four statuses.
func buildRows(ownerID string, userSeed int) []seedRow {
	now := time.Now().UTC()
	at := func(hours int) time.Time { return now.Add(time.Duration(hours) * time.Hour) }

	rows := make([]seedRow, 0, 16)
	for i := 0; i < 16; i++ {
		pairSeed := userSeed*31 + i
		pair := locationPairs[pairSeed%len(locationPairs)]

		status := model.StatusPending
		scheduledAt := at(2 + i%10)
		createdAt := at(-(72 - i*5))
		var canceledAt *time.Time

		switch i % 4 {
		case 1:
			status = model.StatusAccepted
			scheduledAt = at(-(36 - i*2))
			createdAt = at(-(84 - i*4))
		case 2:
			status = model.StatusCompleted
			scheduledAt = at(-(22 - i))
			createdAt = at(-(96 - i*3))
		case 3:
			status = model.StatusCanceled
			scheduledAt = at(-(18 - i))
			createdAt = at(-(96 - i*3))
			t := at(-(12 - i))
			canceledAt = &t
		}

		rows = append(rows, seedRow{
			ownerID:     ownerID,
			kind:        kinds[(pairSeed+7)%len(kinds)],
			status:      status,
			class:       rideClasses[pairSeed%len(rideClasses)],
			pickup:      pair[0],
			dropoff:     pair[1],
			scheduledAt: scheduledAt,
			createdAt:   createdAt,
			canceledAt:  canceledAt,
		})
	}
	return rows
}
