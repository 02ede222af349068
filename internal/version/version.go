package version

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Значения подставляются при сборке:
//
//	go build -ldflags "-X github.com/vladislavdragonenkov/orderdesk/internal/version.version=v1.4.0 \
//	  -X github.com/vladislavdragonenkov/orderdesk/internal/version.commit=$(git rev-parse --short HEAD) \
//	  -X github.com/vladislavdragonenkov/orderdesk/internal/version.date=$(date -u +%FT%TZ)"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Service — имя сервиса в логах и ответах health-проверок.
const Service = "orderdesk"

// Build описывает сборку бинарника.
type Build struct {
	Service string
	Version string
	Commit  string
	Date    string
}

// Current возвращает сведения о текущей сборке.
func Current() Build {
	return Build{Service: Service, Version: version, Commit: commit, Date: date}
}

// Release сообщает, проставлена ли версия при сборке.
func (b Build) Release() bool { return b.Version != "dev" }

// Fields отдаёт сведения о сборке полями лога.
func (b Build) Fields() log.Fields {
	return log.Fields{
		"service":    b.Service,
		"version":    b.Version,
		"commit":     b.Commit,
		"build_date": b.Date,
	}
}

func (b Build) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", b.Service, b.Version, b.Commit, b.Date)
}
