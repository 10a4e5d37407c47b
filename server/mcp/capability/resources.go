package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/relay4ai/mcp/server/mcp"
	"github.com/relay4ai/mcp/shared"
	"github.com/relay4ai/mcp/shared/mcp/2025/schema"
)

// SubscriptionOperation represents the type of subscription event.
type SubscriptionOperation int

const (
	Subscribe SubscriptionOperation = iota
	Unsubscribe
)

// SubscriptionHandler is called on subscription events with the session, the
// operation, the URI and the remaining subscriber count for that URI.
type SubscriptionHandler func(session shared.ISession, operation SubscriptionOperation, uri string, count int)

// ResourceHandler serves one resources/read request.
type ResourceHandler func(ctx context.Context, msg *shared.Message, uri string) (schema.Meta, []schema.ResourceContents, error)

var _ shared.IServerCapability = (*ResourcesCapability)(nil)

// ResourcesCapability handles resource management, reading and subscriptions.
type ResourcesCapability struct {
	logger                *zap.Logger
	manager               *mcp.Manager
	mu                    sync.RWMutex
	resources             map[string]*Resource         // URI -> Resource
	templates             map[string]*ResourceTemplate // URI template -> ResourceTemplate
	subscribers           map[string]map[string]bool   // URI -> set of session IDs
	subscribeOnSubscribes []SubscriptionHandler
	handlers              map[string]shared.MessageHandler
}

// Resource pairs a resource definition with its read handler.
type Resource struct {
	schema.Resource
	Handler      ResourceHandler
	LastModified time.Time
}

// ResourceTemplate pairs a template definition with the handler serving its
// expansions.
type ResourceTemplate struct {
	schema.ResourceTemplate
	Handler ResourceHandler
}

// NewResourcesCapability creates a new ResourcesCapability.
func NewResourcesCapability(manager *mcp.Manager, logger *zap.Logger) *ResourcesCapability {
	rc := &ResourcesCapability{
		manager:     manager,
		logger:      logger,
		resources:   make(map[string]*Resource),
		templates:   make(map[string]*ResourceTemplate),
		subscribers: make(map[string]map[string]bool),
	}
	rc.handlers = map[string]shared.MessageHandler{
		"resources/list":           rc.handleResourcesList,
		"resources/read":           rc.handleResourcesRead,
		"resources/subscribe":      rc.handleResourcesSubscribe,
		"resources/unsubscribe":    rc.handleResourcesUnsubscribe,
		"resources/templates/list": rc.handleResourceTemplatesList,
	}
	return rc
}

func (rc *ResourcesCapability) GetHandlers() map[string]shared.MessageHandler {
	return rc.handlers
}

func (rc *ResourcesCapability) SetCapabilities(s *schema.ServerCapabilities) {
	s.Resources = &schema.CapabilityWithSubscribe{
		ListChanged: true,
		Subscribe:   true,
	}
}

// AddResource adds a new resource with the specified details.
func (rc *ResourcesCapability) AddResource(uri string, name string, description string, mimeType string, handler ResourceHandler) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if _, exists := rc.resources[uri]; exists {
		return fmt.Errorf("resource with URI '%s' already exists", uri)
	}

	rc.resources[uri] = &Resource{
		Resource: schema.Resource{
			URI:         uri,
			Name:        name,
			Description: description,
			MimeType:    mimeType,
		},
		Handler:      handler,
		LastModified: time.Now(),
	}

	rc.logger.Info("Added resource", zap.String("uri", uri))
	go rc.broadcastResourcesListChanged()
	return nil
}

// UpdateResource updates an existing resource and notifies subscribers.
func (rc *ResourcesCapability) UpdateResource(uri string, name string, description string, mimeType string, handler ResourceHandler) error {
	rc.mu.Lock()
	resource, exists := rc.resources[uri]
	if !exists {
		rc.mu.Unlock()
		return fmt.Errorf("resource with URI '%s' does not exist", uri)
	}
	resource.Name = name
	resource.Description = description
	resource.MimeType = mimeType
	resource.Handler = handler
	resource.LastModified = time.Now()
	rc.mu.Unlock()

	rc.logger.Info("Updated resource", zap.String("uri", uri))
	go rc.NotifyResourceUpdated(uri)
	return nil
}

// DeleteResource removes a resource by URI.
func (rc *ResourcesCapability) DeleteResource(uri string) error {
	rc.mu.Lock()
	if _, exists := rc.resources[uri]; !exists {
		rc.mu.Unlock()
		return fmt.Errorf("resource with URI '%s' does not exist", uri)
	}
	delete(rc.resources, uri)
	delete(rc.subscribers, uri)
	rc.mu.Unlock()

	rc.logger.Info("Deleted resource", zap.String("uri", uri))
	go rc.broadcastResourcesListChanged()
	return nil
}

// AddResourceTemplate adds a new resource template.
func (rc *ResourcesCapability) AddResourceTemplate(uriTemplate string, name string, description string, mimeType string, handler ResourceHandler) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if _, exists := rc.templates[uriTemplate]; exists {
		return fmt.Errorf("resource template with URI template '%s' already exists", uriTemplate)
	}

	rc.templates[uriTemplate] = &ResourceTemplate{
		ResourceTemplate: schema.ResourceTemplate{
			URITemplate: uriTemplate,
			Name:        name,
			Description: description,
			MimeType:    mimeType,
		},
		Handler: handler,
	}

	rc.logger.Info("Added resource template", zap.String("uriTemplate", uriTemplate))
	return nil
}

// DeleteResourceTemplate removes a resource template by URI template.
func (rc *ResourcesCapability) DeleteResourceTemplate(uriTemplate string) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if _, exists := rc.templates[uriTemplate]; !exists {
		return fmt.Errorf("resource template with URI template '%s' does not exist", uriTemplate)
	}
	delete(rc.templates, uriTemplate)
	rc.logger.Info("Deleted resource template", zap.String("uriTemplate", uriTemplate))
	return nil
}

// TriggerResourceUpdate marks a resource as updated and notifies subscribers.
// Useful when the resource content changes externally.
func (rc *ResourcesCapability) TriggerResourceUpdate(uri string) error {
	rc.mu.Lock()
	resource, exists := rc.resources[uri]
	if !exists {
		rc.mu.Unlock()
		return fmt.Errorf("cannot trigger update for non-existent resource URI '%s'", uri)
	}
	resource.LastModified = time.Now()
	rc.mu.Unlock()

	go rc.NotifyResourceUpdated(uri)
	return nil
}

func (rc *ResourcesCapability) broadcastResourcesListChanged() {
	if rc.manager == nil {
		rc.logger.Error("Cannot broadcast resource list changed: manager not set")
		return
	}
	rc.manager.NotifyEligibleSessions("notifications/resources/list_changed", nil)
}

// NotifyResourceUpdated sends notifications/resources/updated to every
// session subscribed to the URI. Sessions that are gone are unsubscribed.
func (rc *ResourcesCapability) NotifyResourceUpdated(uri string) {
	if rc.manager == nil {
		rc.logger.Error("Cannot send resource update notification: manager not set")
		return
	}

	rc.mu.RLock()
	subscribersMap, exists := rc.subscribers[uri]
	if !exists || len(subscribersMap) == 0 {
		rc.mu.RUnlock()
		return
	}
	subscriberIDs := make([]string, 0, len(subscribersMap))
	for sessionID := range subscribersMap {
		subscriberIDs = append(subscriberIDs, sessionID)
	}
	rc.mu.RUnlock()

	params := schema.ResourceUpdatedNotificationParams{URI: uri}
	rc.logger.Debug("Notifying subscribers about resource update", zap.String("uri", uri), zap.Int("count", len(subscriberIDs)))

	for _, sessionID := range subscriberIDs {
		s, err := rc.manager.GetSession(sessionID)
		if err != nil {
			rc.logger.Warn("Subscriber session gone, removing subscription",
				zap.String("uri", uri), zap.String("sessionID", sessionID))
			rc.mu.Lock()
			if subs, ok := rc.subscribers[uri]; ok {
				delete(subs, sessionID)
				if len(subs) == 0 {
					delete(rc.subscribers, uri)
				}
			}
			rc.mu.Unlock()
			continue
		}
		s.SendNotification(context.Background(), "notifications/resources/updated", params)
	}
}

// handleResourcesList handles the "resources/list" request.
func (rc *ResourcesCapability) handleResourcesList(ctx context.Context, msg *shared.Message) (interface{}, error) {
	logger := rc.logger.With(zap.String("sessionID", msg.Session.GetID()), zap.String("method", "resources/list"))

	rc.mu.RLock()
	resourcesList := make([]schema.Resource, 0, len(rc.resources))
	for _, resource := range rc.resources {
		resourcesList = append(resourcesList, resource.Resource)
	}
	rc.mu.RUnlock()

	logger.Debug("Returning resource list", zap.Int("count", len(resourcesList)))
	return schema.ListResourcesResult{Resources: resourcesList}, nil
}

// handleResourcesRead handles the "resources/read" request.
func (rc *ResourcesCapability) handleResourcesRead(ctx context.Context, msg *shared.Message) (interface{}, error) {
	logger := rc.logger.With(zap.String("sessionID", msg.Session.GetID()), zap.String("method", "resources/read"))

	var params schema.ReadResourceRequestParams
	if msg.Params == nil {
		logger.Warn("Missing parameters in resources/read request")
		return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidParams, Message: "missing params"}
	}
	if err := json.Unmarshal(*msg.Params, &params); err != nil {
		logger.Error("Failed to unmarshal resources/read params", zap.Error(err))
		return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidParams, Message: fmt.Sprintf("invalid parameters: %v", err)}
	}
	logger = logger.With(zap.String("uri", params.URI))

	rc.mu.RLock()
	resource, exists := rc.resources[params.URI]
	rc.mu.RUnlock()

	if !exists {
		logger.Warn("Resource not found")
		return nil, fmt.Errorf("resource not found: %s", params.URI)
	}
	if resource.Handler == nil {
		logger.Error("Resource found but handler is nil")
		return nil, fmt.Errorf("internal error: no handler available for resource %s", params.URI)
	}

	meta, contents, err := resource.Handler(ctx, msg, params.URI)
	if err != nil {
		logger.Error("Resource handler returned an error", zap.Error(err))
		return nil, fmt.Errorf("handler for resource '%s' failed: %w", params.URI, err)
	}

	return schema.ReadResourceResult{
		Meta:     meta,
		Contents: contents,
	}, nil
}

// handleResourceTemplatesList handles the "resources/templates/list" request.
func (rc *ResourcesCapability) handleResourceTemplatesList(ctx context.Context, msg *shared.Message) (interface{}, error) {
	logger := rc.logger.With(zap.String("sessionID", msg.Session.GetID()), zap.String("method", "resources/templates/list"))

	rc.mu.RLock()
	templatesList := make([]schema.ResourceTemplate, 0, len(rc.templates))
	for _, template := range rc.templates {
		templatesList = append(templatesList, template.ResourceTemplate)
	}
	rc.mu.RUnlock()

	logger.Debug("Returning resource templates list", zap.Int("count", len(templatesList)))
	return schema.ListResourceTemplatesResult{ResourceTemplates: templatesList}, nil
}

// AddSubscriptionHandler adds a handler notified about subscription changes.
func (rc *ResourcesCapability) AddSubscriptionHandler(handler SubscriptionHandler) {
	if handler == nil {
		return
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.subscribeOnSubscribes = append(rc.subscribeOnSubscribes, handler)
}

// RemoveSubscriptionHandler removes a specific handler from the notification list.
func (rc *ResourcesCapability) RemoveSubscriptionHandler(handler SubscriptionHandler) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	targetPtr := reflect.ValueOf(handler).Pointer()
	newHandlers := rc.subscribeOnSubscribes[:0]
	for _, h := range rc.subscribeOnSubscribes {
		if reflect.ValueOf(h).Pointer() != targetPtr {
			newHandlers = append(newHandlers, h)
		}
	}
	rc.subscribeOnSubscribes = newHandlers
}

func (rc *ResourcesCapability) notifySubscriptionHandlers(session shared.ISession, operation SubscriptionOperation, uri string, count int) {
	rc.mu.RLock()
	handlers := make([]SubscriptionHandler, len(rc.subscribeOnSubscribes))
	copy(handlers, rc.subscribeOnSubscribes)
	rc.mu.RUnlock()

	for _, handler := range handlers {
		go func(h SubscriptionHandler) {
			defer func() {
				if r := recover(); r != nil {
					rc.logger.Error("Panic recovered in subscription handler", zap.Any("panic", r), zap.String("uri", uri))
				}
			}()
			h(session, operation, uri, count)
		}(handler)
	}
}

// handleResourcesSubscribe handles the "resources/subscribe" request.
func (rc *ResourcesCapability) handleResourcesSubscribe(ctx context.Context, msg *shared.Message) (interface{}, error) {
	logger := rc.logger.With(zap.String("sessionID", msg.Session.GetID()), zap.String("method", "resources/subscribe"))

	var params schema.SubscribeRequestParams
	if msg.Params == nil {
		return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidParams, Message: "missing params"}
	}
	if err := json.Unmarshal(*msg.Params, &params); err != nil {
		logger.Error("Failed to unmarshal subscribe params", zap.Error(err))
		return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidParams, Message: fmt.Sprintf("invalid parameters: %v", err)}
	}
	logger = logger.With(zap.String("uri", params.URI))

	rc.mu.Lock()
	if _, exists := rc.resources[params.URI]; !exists {
		rc.mu.Unlock()
		logger.Warn("Attempt to subscribe to unknown resource")
		return nil, fmt.Errorf("cannot subscribe to unknown resource: %s", params.URI)
	}
	if rc.subscribers[params.URI] == nil {
		rc.subscribers[params.URI] = make(map[string]bool)
	}
	isNewSubscription := !rc.subscribers[params.URI][msg.Session.GetID()]
	rc.subscribers[params.URI][msg.Session.GetID()] = true
	currentCount := len(rc.subscribers[params.URI])
	rc.mu.Unlock()

	if isNewSubscription {
		logger.Info("Resource subscription added", zap.Int("currentCount", currentCount))
		go rc.notifySubscriptionHandlers(msg.Session, Subscribe, params.URI, currentCount)
	}
	return map[string]interface{}{}, nil
}

// handleResourcesUnsubscribe handles the "resources/unsubscribe" request.
func (rc *ResourcesCapability) handleResourcesUnsubscribe(ctx context.Context, msg *shared.Message) (interface{}, error) {
	logger := rc.logger.With(zap.String("sessionID", msg.Session.GetID()), zap.String("method", "resources/unsubscribe"))

	var params schema.SubscribeRequestParams
	if msg.Params == nil {
		return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidParams, Message: "missing params"}
	}
	if err := json.Unmarshal(*msg.Params, &params); err != nil {
		logger.Error("Failed to unmarshal unsubscribe params", zap.Error(err))
		return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidParams, Message: fmt.Sprintf("invalid parameters: %v", err)}
	}
	logger = logger.With(zap.String("uri", params.URI))

	rc.mu.Lock()
	var currentCount int
	wasSubscribed := false
	if subscribersMap, exists := rc.subscribers[params.URI]; exists {
		if _, subscribed := subscribersMap[msg.Session.GetID()]; subscribed {
			wasSubscribed = true
			delete(subscribersMap, msg.Session.GetID())
			currentCount = len(subscribersMap)
			if currentCount == 0 {
				delete(rc.subscribers, params.URI)
			}
		}
	}
	rc.mu.Unlock()

	if wasSubscribed {
		logger.Info("Resource subscription removed", zap.Int("remainingCount", currentCount))
		go rc.notifySubscriptionHandlers(msg.Session, Unsubscribe, params.URI, currentCount)
	}
	return map[string]interface{}{}, nil
}

// DropSessionSubscriptions removes every subscription of a closed session.
func (rc *ResourcesCapability) DropSessionSubscriptions(sessionID string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for uri, subs := range rc.subscribers {
		delete(subs, sessionID)
		if len(subs) == 0 {
			delete(rc.subscribers, uri)
		}
	}
}

// GetSubscribedResources returns the URIs that have at least one subscriber.
func (rc *ResourcesCapability) GetSubscribedResources() []string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	uris := make([]string, 0, len(rc.subscribers))
	for uri, subscribers := range rc.subscribers {
		if len(subscribers) > 0 {
			uris = append(uris, uri)
		}
	}
	return uris
}
