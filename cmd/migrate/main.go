package main

import (
	"context"
	"flag"
	"fmt"

	"ms-boxoffice/internal/config"
	"ms-boxoffice/internal/database"
	"ms-boxoffice/internal/database/migrations"
	"ms-boxoffice/internal/logger"

	"github.com/joho/godotenv"
)

func main() {
	down := flag.Bool("down", false, "roll every migration back")
	seed := flag.Bool("seed", false, "also load the demo event")
	flag.Parse()

	log := logger.NewLogger()
	defer log.Close()
	_ = godotenv.Load()

	cfg := config.Load()
	bunDB, err := database.Connect(context.Background(), cfg.Database, log)
	if err != nil {
		log.Fatal("MIGRATE", err.Error())
	}
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB.DB, migrations.MigrateOptions{SeedData: *seed}, log)
	defer runner.Close()

	if *down {
		err = runner.MigrateDown()
	} else {
		err = runner.RunMigrations()
	}
	if err != nil {
		log.Fatal("MIGRATE", err.Error())
	}
	log.Info("MIGRATE", fmt.Sprintf("Done (down=%t seed=%t)", *down, *seed))
}
