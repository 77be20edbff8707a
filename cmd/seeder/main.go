package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/somedsale/quotelist/pkg/source"
)

var (
	titles = []string{"Báo giá thiết bị", "Báo giá lắp đặt", "Yêu cầu tư vấn", "Báo giá bảo trì"}
	names  = []string{"Nguyễn Văn An", "Trần Thị Bình", "Lê Hoàng Cường", "Phạm Minh Dũng", "Võ Thu Hà"}
)

func main() {
	addr := flag.String("addr", ":8082", "HTTP server address")
	driver := flag.String("driver", "mysql", "Database driver (mysql or sqlite)")
	dsn := flag.String("dsn", "root:@tcp(localhost:3306)/quotes?parseTime=true", "Database DSN")
	table := flag.String("table", "table_contact", "Contact table name")
	flag.Parse()

	if !source.ValidTable(*table) {
		log.Fatalf("invalid table name %q", *table)
	}

	db, err := sql.Open(*driver, *dsn)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	insert := fmt.Sprintf("INSERT INTO %s (tieude, ten, email, dienthoai, ngaytao) VALUES (?, ?, ?, ?, ?)", *table)

	// HTTP Handlers
	http.HandleFunc("/insert", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		row := randomContact()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		res, err := db.ExecContext(ctx, insert, row.Title, row.Name, row.Email, row.Phone, row.CreatedAt)
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to insert: %v", err), http.StatusInternalServerError)
			return
		}
		if id, err := res.LastInsertId(); err == nil {
			row.ID = id
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(row)
	})

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{Addr: *addr}

	go func() {
		fmt.Printf("Seeder server starting on %s (%s table %s)\n", *addr, *driver, *table)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	// Signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	fmt.Println("\nShutting down seeder server...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	server.Shutdown(shutdownCtx)
}

func randomContact() source.Row {
	n := rand.Intn(1000000)
	return source.Row{
		Title:     titles[rand.Intn(len(titles))],
		Name:      names[rand.Intn(len(names))],
		Email:     fmt.Sprintf("customer%d@example.com", n),
		Phone:     fmt.Sprintf("09%08d", rand.Intn(100000000)),
		CreatedAt: time.Now().Truncate(time.Second),
	}
}
