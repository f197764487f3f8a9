package app

import (
	"database/sql"
	"net/http"

	"lmsquiz/internal/app/apiresp"
	"lmsquiz/internal/app/observability"
	"lmsquiz/internal/auth"
	"lmsquiz/internal/course"
	"lmsquiz/internal/notify"
	"lmsquiz/internal/quiz"
	"lmsquiz/internal/report"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Deps lets tests swap the review notifier. Zero value means "build from Config".
type Deps struct {
	Notifier notify.ReviewNotifier
}

func NewRouter(cfg Config, db *sql.DB, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if !cfg.IsProduction() {
		r.Use(middleware.Logger)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	metrics := observability.NewCollector(db)
	r.Use(metrics.Middleware)

	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.NewSMTPNotifier(notify.SMTPConfig{
			Host: cfg.SMTPHost,
			Port: cfg.SMTPPort,
			User: cfg.SMTPUser,
			Pass: cfg.SMTPPass,
			From: cfg.SMTPFrom,

			Timeout: cfg.SMTPTimeout(),
		})
	}

	authSvc := auth.NewService(db, auth.ServiceConfig{
		JWTSecret: cfg.JWTSecret,
		TokenTTL:  cfg.TokenTTL(),
	})
	authHandler := auth.NewHandler(authSvc)

	courseStore := course.NewStore()
	courseHandler := course.NewHandler(course.NewService(db, courseStore))
	quizHandler := quiz.NewHandler(quiz.NewService(db, courseStore, notifier))
	reportHandler := report.NewHandler(report.NewService(db, courseStore, cfg.ExportMaxRows))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				apiresp.WriteError(w, r, http.StatusServiceUnavailable, "database unavailable")
				return
			}
		}
		apiresp.WriteOK(w, r, http.StatusOK, map[string]bool{"ok": true})
	})

	r.Group(func(admin chi.Router) {
		admin.Use(authHandler.RequireAuth)
		admin.Use(auth.RequireRoles(auth.RoleAdmin))
		admin.Get("/metrics", metrics.MetricsHandler)
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.With(LoginRateLimit(cfg.AuthRateLimitPerMin)).Post("/auth/login", authHandler.LoginPassword)

		api.Group(func(secure chi.Router) {
			secure.Use(authHandler.RequireAuth)
			secure.Use(observability.TagUser)

			secure.Get("/auth/me", authHandler.Me)

			secure.Get("/courses/{courseID}/quiz", quizHandler.GetQuiz)
			secure.Get("/courses/{courseID}/quiz/can-attempt", quizHandler.CanAttempt)
			secure.Get("/courses/{courseID}/quiz/history", quizHandler.History)
			secure.Get("/courses/{courseID}/quiz/results/{submissionID}", quizHandler.Results)
			secure.Get("/courses/{courseID}/progress", courseHandler.Progress)
			secure.Post("/courses/{courseID}/chapters/{chapterID}/complete", courseHandler.CompleteChapter)

			secure.Get("/quizzes/{quizID}/check-attempt", quizHandler.CheckAttempt)
			secure.Post("/quizzes/{quizID}/submit", quizHandler.Submit)

			secure.Group(func(authors chi.Router) {
				authors.Use(auth.RequireRoles(auth.AuthorRoles...))
				authors.Post("/courses", courseHandler.CreateCourse)
				authors.Post("/courses/{courseID}/quiz", quizHandler.SaveQuiz)
				authors.Delete("/quizzes/{quizID}", quizHandler.DeleteQuiz)
				authors.Get("/quizzes/{quizID}/diagnostics", quizHandler.Diagnostics)
			})

			secure.Group(func(staff chi.Router) {
				staff.Use(auth.RequireRoles(auth.StaffRoles...))
				staff.Get("/courses/{courseID}/quiz/submissions", reportHandler.CourseSubmissions)
				staff.Get("/courses/{courseID}/quiz/submissions/export", reportHandler.ExportCourseSubmissions)
				staff.Get("/quizzes/{quizID}/summary", reportHandler.Summary)

				staff.Get("/submissions/{submissionID}", quizHandler.SubmissionDetails)
				staff.Get("/submissions/{submissionID}/full", quizHandler.FullSubmissionDetails)
				staff.Patch("/submissions/{submissionID}/approve", quizHandler.Approve)
				staff.Patch("/submissions/{submissionID}/reject", quizHandler.Reject)
				staff.Patch("/submissions/{submissionID}/reset-attempts", quizHandler.ResetAttempts)
			})

			secure.Group(func(admin chi.Router) {
				admin.Use(auth.RequireRoles(auth.RoleAdmin))
				admin.Post("/admin/users", authHandler.CreateUser)
				admin.Get("/submissions", reportHandler.AllSubmissions)
				admin.Get("/submissions/export", reportHandler.ExportAllSubmissions)
			})
		})
	})

	return r
}
