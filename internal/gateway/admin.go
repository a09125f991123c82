package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/health"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/logging"
)

func (s *Server) adminHandler() http.Handler {
	r := httprouter.New()

	r.GET("/health", s.handleHealth)
	r.Handler(http.MethodGet, "/metrics", s.gateway.Metrics().Handler())
	r.GET("/routes", s.handleRoutes)

	// Health cache inspection and invalidation
	r.GET("/health-cache", s.handleHealthCache)
	r.POST("/health-cache/invalidate", s.handleInvalidate)
	r.POST("/health-cache/invalidate/:service", s.handleInvalidate)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func boolStatus(ok bool) string {
	if ok {
		return "ok"
	}
	return "fail"
}

// handleHealth reports gateway liveness. Dependency failures degrade the
// report but not the status code, since the pipeline fails open on them.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	checks := make(map[string]interface{})
	overall := "healthy"

	if s.gateway.redisClient != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		err := s.gateway.redisClient.Ping(ctx).Err()
		redisStatus := map[string]interface{}{
			"status": boolStatus(err == nil),
		}
		if err != nil {
			redisStatus["error"] = err.Error()
			overall = "degraded"
		}
		checks["redis"] = redisStatus
	}

	if state := s.gateway.BreakerState(); state != "" {
		checks["rate_limit_breaker"] = map[string]interface{}{"state": state}
		if state != "closed" {
			overall = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    overall,
		"uptime":    time.Since(s.startTime).Round(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"stages":    s.gateway.Stages(),
		"checks":    checks,
	})
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	type routeInfo struct {
		Name          string   `json:"name"`
		PathPrefix    string   `json:"path_prefix"`
		Target        string   `json:"target"`
		ServiceID     string   `json:"service_id"`
		StripPrefix   bool     `json:"strip_prefix"`
		RequiresAuth  bool     `json:"requires_auth"`
		PublicRead    bool     `json:"public_read,omitempty"`
		RequiredRoles []string `json:"required_roles,omitempty"`
		RoleMethods   []string `json:"role_methods,omitempty"`
		Timeout       string   `json:"timeout"`
	}

	def := s.config.Timeouts.Default
	routes := s.gateway.Routes().Routes()
	result := make([]routeInfo, 0, len(routes))
	for _, route := range routes {
		result = append(result, routeInfo{
			Name:          route.Name,
			PathPrefix:    route.PathPrefix,
			Target:        route.Target.String(),
			ServiceID:     route.ServiceID,
			StripPrefix:   route.StripPrefix,
			RequiresAuth:  route.RequiresAuth,
			PublicRead:    route.PublicRead,
			RequiredRoles: route.Roles(),
			RoleMethods:   route.Methods(),
			Timeout:       route.EffectiveTimeout(def).String(),
		})
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealthCache(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, s.gateway.HealthCache().Snapshot())
}

// handleInvalidate drops one service verdict, or all of them without a
// service parameter.
func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	serviceID := ps.ByName("service")
	if serviceID == "" {
		serviceID = health.InvalidateAllPayload
	}

	if err := s.gateway.InvalidateHealth(r.Context(), serviceID); err != nil {
		logging.Error("Health cache invalidation failed", zap.String("service", serviceID), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	logging.Info("Health cache invalidated", zap.String("service", serviceID))
	writeJSON(w, http.StatusOK, map[string]string{"invalidated": serviceID})
}
