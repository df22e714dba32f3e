package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"taskboard-project/backend/config"
	"taskboard-project/backend/handlers"
	"taskboard-project/backend/logging"
	"taskboard-project/backend/middleware"
	"taskboard-project/backend/services"
	"taskboard-project/backend/store"
)

func createUniqueIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]string{
		store.Users:         {"username", "email"},
		store.Organizations: {"name"},
		store.Projects:      {"name"},
		store.Tasks:         {"name"},
	}
	for collection, fields := range indexes {
		for _, field := range fields {
			_, err := db.Collection(collection).Indexes().CreateOne(ctx, mongo.IndexModel{
				Keys:    bson.M{field: 1},
				Options: options.Index().SetUnique(true),
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func main() {
	cfg := config.Load()
	logging.InitLogger(cfg.LogFile)

	if cfg.UsingFallbackSecret() {
		logging.Logger.Warn("Event ID: INSECURE_JWT_SECRET, Description: JWT_SECRET not set, using the insecure development fallback")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logging.Logger.Fatalf("Event ID: MONGO_CONNECT_FAILED, Description: Database connection failed: %v", err)
	}
	defer client.Disconnect(context.Background())

	if err := client.Ping(ctx, nil); err != nil {
		logging.Logger.Fatalf("Event ID: MONGO_PING_FAILED, Description: MongoDB connection error: %v", err)
	}
	logging.Logger.Info("Event ID: MONGO_CONNECTED, Description: Connected to MongoDB")

	db := client.Database(cfg.Database)
	if err := createUniqueIndexes(ctx, db); err != nil {
		logging.Logger.Fatalf("Event ID: INDEX_CREATE_FAILED, Description: Failed to create unique indexes: %v", err)
	}

	storeBreaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "MongoStoreCB",
		MaxRequests: 1,
		Timeout:     2 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Logger.Infof("Event ID: CIRCUIT_BREAKER_STATE_CHANGE, Description: Circuit Breaker '%s' changed from '%s' to '%s'", name, from.String(), to.String())
		},
	})
	st := store.NewMongoStore(db, storeBreaker)

	jwtService := services.NewJWTService(cfg.JWTSecret, cfg.TokenTTL)
	userService := services.NewUserService(st, jwtService, cfg.PageSize)
	orgService := services.NewOrganizationService(st)
	projectService := services.NewProjectService(st, cfg.PageSize)
	taskService := services.NewTaskService(st, cfg.PageSize)

	loginHandler := handlers.NewLoginHandler(userService)
	userHandler := handlers.NewUserHandler(userService)
	orgHandler := handlers.NewOrganizationHandler(orgService)
	projectHandler := handlers.NewProjectHandler(projectService)
	taskHandler := handlers.NewTaskHandler(taskService)

	r := mux.NewRouter()
	r.HandleFunc("/api/register", userHandler.Register).Methods("POST")
	r.HandleFunc("/api/login", loginHandler.Login).Methods("POST")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.JWTAuth(jwtService))

	api.HandleFunc("/users", userHandler.SearchUsers).Methods("GET")
	api.HandleFunc("/users/password", userHandler.ChangePassword).Methods("POST")
	api.HandleFunc("/users/{id}", userHandler.GetUser).Methods("GET")
	api.HandleFunc("/users/{id}", userHandler.UpdateUser).Methods("PATCH")
	api.HandleFunc("/users/{id}", userHandler.DeleteUser).Methods("DELETE")

	api.HandleFunc("/organizations", orgHandler.SearchOrganizations).Methods("GET")
	api.HandleFunc("/organizations", orgHandler.CreateOrganization).Methods("POST")
	api.HandleFunc("/organizations/{id}", orgHandler.GetOrganization).Methods("GET")
	api.HandleFunc("/organizations/{id}", orgHandler.UpdateOrganization).Methods("PUT")
	api.HandleFunc("/organizations/{id}", orgHandler.DeleteOrganization).Methods("DELETE")
	api.HandleFunc("/organizations/{id}/members", orgHandler.SearchMembers).Methods("GET")
	api.HandleFunc("/organizations/{id}/members", orgHandler.AddMember).Methods("POST")
	api.HandleFunc("/organizations/{id}/members/{userId}", orgHandler.RemoveMember).Methods("DELETE")

	api.HandleFunc("/organizations/{orgId}/projects", projectHandler.SearchProjects).Methods("GET")
	api.HandleFunc("/organizations/{orgId}/projects", projectHandler.CreateProject).Methods("POST")
	api.HandleFunc("/projects/{id}", projectHandler.GetProject).Methods("GET")
	api.HandleFunc("/projects/{id}", projectHandler.UpdateProject).Methods("PUT")
	api.HandleFunc("/projects/{id}", projectHandler.DeleteProject).Methods("DELETE")
	api.HandleFunc("/projects/{id}/users", projectHandler.AddUser).Methods("POST")
	api.HandleFunc("/projects/{id}/users/{userId}", projectHandler.RemoveUser).Methods("DELETE")
	api.HandleFunc("/projects/{id}/users/{userId}/role", projectHandler.UpdateUserRole).Methods("PATCH")
	api.HandleFunc("/projects/{id}/users/{userId}/membership", projectHandler.CheckMembership).Methods("GET")
	api.HandleFunc("/projects/{id}/sprints", projectHandler.AddSprint).Methods("POST")

	api.HandleFunc("/projects/{projectId}/tasks", taskHandler.SearchTasks).Methods("GET")
	api.HandleFunc("/projects/{projectId}/tasks", taskHandler.CreateTask).Methods("POST")
	api.HandleFunc("/projects/{projectId}/tasks", taskHandler.DeleteTaskByName).Methods("DELETE")
	api.HandleFunc("/projects/{projectId}/users/{userId}/tasks", taskHandler.ListTasksForUser).Methods("GET")
	api.HandleFunc("/tasks/{id}", taskHandler.GetTask).Methods("GET")
	api.HandleFunc("/tasks/{id}", taskHandler.UpdateTask).Methods("PATCH")
	api.HandleFunc("/tasks/{id}", taskHandler.DeleteTask).Methods("DELETE")
	api.HandleFunc("/tasks/{id}/comments", taskHandler.AddComment).Methods("POST")

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      middleware.CORS(r),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	logging.Logger.Infof("Event ID: SERVER_STARTED, Description: Server is running on %s", cfg.HTTPAddr)
	logging.Logger.Fatal(srv.ListenAndServe())
}
