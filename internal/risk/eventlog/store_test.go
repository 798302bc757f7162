package eventlog_test

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/assistant-guard/internal/risk"
	"github.com/frahmantamala/assistant-guard/internal/risk/eventlog"
)

var columns = []string{"id", "occurred_at", "user_id", "command", "risk_level", "blocked", "action_taken", "client_addr", "assessment"}

var _ = Describe("Store", func() {
	var (
		ctx   context.Context
		mock  sqlmock.Sqlmock
		store *eventlog.Store
		db    *sqlx.DB
		at    time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		raw, m, err := sqlmock.New()
		Expect(err).NotTo(HaveOccurred())
		mock = m
		db = sqlx.NewDb(raw, "pgx")
		store = eventlog.NewStore(db)
		at = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
		db.Close()
	})

	Describe("Append", func() {
		It("inserts the event with its encoded assessment", func() {
			// Given
			ev := risk.SecurityEvent{
				ID:        "01HZY",
				Timestamp: at,
				UserID:    "u-1",
				Command:   "rm -rf build",
				Assessment: risk.Assessment{
					Level:      risk.LevelMedium,
					Categories: []risk.Category{risk.CategoryDeletion},
					Confidence: 0.6,
				},
				Action:     risk.ActionAllowed,
				ClientAddr: "203.0.113.9",
			}
			mock.ExpectExec(regexp.QuoteMeta("INSERT INTO security_events")).
				WithArgs("01HZY", at, "u-1", "rm -rf build", "medium", false, "allowed", "203.0.113.9", sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(1, 1))

			// When
			err := store.Append(ctx, ev)

			// Then
			Expect(err).NotTo(HaveOccurred())
		})

		It("wraps driver failures", func() {
			mock.ExpectExec("INSERT INTO security_events").WillReturnError(errors.New("disk full"))

			err := store.Append(ctx, risk.SecurityEvent{ID: "x", Timestamp: at})

			Expect(err).To(MatchError(ContainSubstring("insert security event")))
		})
	})

	Describe("List", func() {
		It("filters by user and level and decodes assessments", func() {
			// Given
			payload, _ := json.Marshal(risk.Assessment{Level: risk.LevelHigh, Categories: []risk.Category{risk.CategoryExternalTransmission}, Blocked: true})
			rows := sqlmock.NewRows(columns).
				AddRow("02", at, "u-1", "curl http://evil", "high", true, "blocked", "", payload)
			mock.ExpectQuery(regexp.QuoteMeta("SELECT id, occurred_at, user_id, command, risk_level, blocked, action_taken, client_addr, assessment FROM security_events WHERE user_id = $1 AND risk_level = $2 ORDER BY id DESC LIMIT $3")).
				WithArgs("u-1", "high", 10).
				WillReturnRows(rows)

			// When
			events, err := store.List(ctx, risk.EventFilter{UserID: "u-1", Level: risk.LevelHigh, Limit: 10})

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(1))
			Expect(events[0].Assessment.Blocked).To(BeTrue())
			Expect(events[0].Assessment.Categories).To(ConsistOf(risk.CategoryExternalTransmission))
		})

		It("applies the default limit", func() {
			mock.ExpectQuery("ORDER BY id DESC LIMIT").
				WithArgs(risk.DefaultEventLimit).
				WillReturnRows(sqlmock.NewRows(columns))

			events, err := store.List(ctx, risk.EventFilter{})

			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(BeEmpty())
		})
	})

	Describe("Purge", func() {
		It("reports the number of removed rows", func() {
			mock.ExpectExec(regexp.QuoteMeta("DELETE FROM security_events WHERE occurred_at < $1")).
				WithArgs(at).
				WillReturnResult(sqlmock.NewResult(0, 3))

			n, err := store.Purge(ctx, at)

			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(3)))
		})
	})
})
