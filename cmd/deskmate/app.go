package main

import (
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"deskmate/internal/avatar"
	"deskmate/internal/chat"
	"deskmate/internal/store"
)

// Transcript rows older than this are deleted on startup.
const transcriptRetention = 90 * 24 * time.Hour

// app wires the subsystems together for a command invocation.
type app struct {
	store      *store.Store
	client     *chat.Client
	manager    *chat.Manager
	backend    *avatar.Headless
	exprs      *avatar.ExpressionSet
	controller *avatar.Controller
	history    *store.History
	log        *zap.Logger
}

func buildApp(log *zap.Logger) (*app, error) {
	st := store.New(dataDir, log)
	settings := st.LoadSettings()
	prompts := st.LoadPrompts()

	client := chat.NewClient(clientConfig(settings), log)

	var opts []chat.ManagerOption
	history, err := store.OpenHistory(filepath.Join(dataDir, "transcript.db"))
	if err != nil {
		log.Warn("transcript archive unavailable", zap.Error(err))
		history = nil
	} else {
		opts = append(opts, chat.WithArchiver(history))
		if removed, err := history.Prune(transcriptRetention); err != nil {
			log.Warn("transcript prune failed", zap.Error(err))
		} else if removed > 0 {
			log.Debug("pruned old transcript rows", zap.Int64("removed", removed))
		}
	}

	manager := chat.NewManager(client, log, opts...)
	manager.UpdatePrompts(stringValue(prompts, "system_prompt"), stringValue(prompts, "greeting"))

	backend := avatar.NewHeadless(log)
	exprs := avatar.NewExpressionSet(st.LoadExpressions())
	controller := avatar.NewController(backend, exprs, log)
	if modelPath != "" {
		if err := controller.LoadModel(modelPath); err != nil {
			log.Warn("cannot load model manifest", zap.String("path", modelPath), zap.Error(err))
		}
	}
	manager.RegisterHandler(controller.Apply)

	return &app{
		store:      st,
		client:     client,
		manager:    manager,
		backend:    backend,
		exprs:      exprs,
		controller: controller,
		history:    history,
		log:        log,
	}, nil
}

// reload re-reads all data files and pushes the new values into the live
// components. Called on startup-equivalent events and data file changes.
func (a *app) reload() {
	settings := a.store.LoadSettings()
	prompts := a.store.LoadPrompts()
	a.client.UpdateConfig(clientConfig(settings))
	a.manager.UpdatePrompts(stringValue(prompts, "system_prompt"), stringValue(prompts, "greeting"))
	a.exprs.Replace(a.store.LoadExpressions())
	a.log.Info("configuration reloaded")
}

func (a *app) close() {
	if a.history != nil {
		_ = a.history.Close()
	}
}

func clientConfig(settings map[string]interface{}) chat.ClientConfig {
	return chat.ClientConfig{
		APIURL: stringValue(settings, "api_url"),
		APIKey: stringValue(settings, "api_key"),
		Model:  stringValue(settings, "model"),
	}
}

func stringValue(m map[string]interface{}, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
