package classifier

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"audiotox-go/internal/logger"
	"audiotox-go/internal/types"
)

// Predictor is what the HTTP layer needs from the model.
type Predictor interface {
	Predict(raw string) types.Verdict
}

// NewHandler exposes POST /predict and GET /healthz.
func NewHandler(p Predictor, log *logger.Logger) http.Handler {
	validate := validator.New()
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/predict", func(w http.ResponseWriter, r *http.Request) {
		reqLog := log.WithRequest(r).WithField("handler", "predict")
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req types.PredictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			reqLog.WithField("error", err.Error()).Warn("invalid json")
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(req); err != nil {
			reqLog.Warn("missing comment")
			http.Error(w, "missing comment", http.StatusBadRequest)
			return
		}

		verdict := p.Predict(*req.Comment)
		reqLog.WithField("label", verdict.Label).WithField("confidence", verdict.Confidence).Info("prediction served")

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(types.PredictResponse{
			Comment:    *req.Comment,
			Label:      verdict.Label,
			Confidence: verdict.Confidence,
		}); err != nil {
			reqLog.WithField("error", err.Error()).Error("failed to write response")
		}
	})

	return mux
}
