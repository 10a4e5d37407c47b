package shared

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/relay4ai/mcp/shared/mcp/2025/schema"
	"go.uber.org/zap"
)

// MessageHandler processes one incoming request or notification. The context
// is cancelled when the peer cancels the request or the session closes.
type MessageHandler func(ctx context.Context, msg *Message) (interface{}, error)

// MessageFilter wraps a handler with extra behavior. Filters run on every
// dispatched message; a filter may short-circuit by not calling next.
type MessageFilter func(next MessageHandler) MessageHandler

// Input dispatches incoming messages to method handlers. One Input instance
// serves every session of a manager; each message runs in its own goroutine.
type Input struct {
	Mu              sync.RWMutex
	input           chan *Message
	stopOnce        sync.Once
	logger          *zap.Logger
	validators      []MessageValidator
	filters         []MessageFilter
	methodHandlers  sync.Map     // method name -> MessageHandler
	notFoundHandler atomic.Value // MessageHandler
	capabilities    []ICapability
}

func NewInput(logger *zap.Logger) *Input {
	i := &Input{
		validators: []MessageValidator{},
		logger:     logger,
		input:      make(chan *Message, 100),
	}
	i.notFoundHandler.Store(MessageHandler(func(ctx context.Context, msg *Message) (interface{}, error) {
		return nil, NewMethodNotFoundError(NilIfNil(msg.Method))
	}))
	return i
}

type MessageValidator interface {
	Validate(*Message) error
}

// Put validates and enqueues a message for processing.
func (i *Input) Put(msg *Message) error {
	i.Mu.RLock()
	copyOfValidators := make([]MessageValidator, len(i.validators))
	copy(copyOfValidators, i.validators)
	i.Mu.RUnlock()

	for _, validator := range copyOfValidators {
		if err := validator.Validate(msg); err != nil {
			if msg.Session != nil && !msg.ID.IsEmpty() {
				go msg.Session.SendResponse(msg.ID, nil, err)
			}
			return err
		}
	}
	msg.Session.UpdateLastActivity()

	select {
	case i.input <- msg:
		i.logger.Debug("Message queued",
			zap.String("sessionID", msg.Session.GetID()),
			zap.Any("messageID", msg.ID),
			zap.Stringp("method", msg.Method),
		)
	default:
		i.logger.Error("Input channel full, dropping message",
			zap.String("sessionID", msg.Session.GetID()),
			zap.Any("messageID", msg.ID),
			zap.Stringp("method", msg.Method),
		)
		if !msg.ID.IsEmpty() {
			go msg.Session.SendResponse(msg.ID, nil, errors.New("message processor busy, message dropped"))
		}
		return errors.New("input processor busy, input channel full")
	}
	return nil
}

// preInitMethods are the only operations a session may perform before the
// initialization handshake completes.
var preInitMethods = map[string]struct{}{
	"initialize":                {},
	"notifications/initialized": {},
	"ping":                      {},
	"notifications/cancelled":   {},
}

// Process runs the dispatch loop until ctx is done or Stop is called.
func (i *Input) Process(ctx context.Context) {
	i.logger.Debug("Input - message processing loop started")
	defer i.logger.Info("Input - message processing loop stopped")
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-i.input:
			if !ok {
				return
			}
			i.dispatch(ctx, msg)
		}
	}
}

// Stop shuts the processing loop down. Messages already queued are dropped.
func (i *Input) Stop() {
	i.stopOnce.Do(func() { close(i.input) })
}

func (i *Input) dispatch(ctx context.Context, msg *Message) {
	if msg.Session == nil {
		i.logger.Error("Received message with nil session in processing queue")
		return
	}
	logger := i.logger.With(zap.String("sessionID", msg.Session.GetID()))

	if msg.Method == nil && msg.ID.IsEmpty() {
		logger.Error("Received invalid message (no method or ID)")
		return
	}

	status := msg.Session.GetStatus()
	if status == StatusClosed {
		logger.Warn("Dropping message for closed session", zap.Stringp("method", msg.Method))
		return
	}
	if msg.Method != nil && status != StatusConnected {
		if _, allowed := preInitMethods[*msg.Method]; !allowed {
			logger.Warn("Method rejected before initialization", zap.String("method", *msg.Method))
			if !msg.ID.IsEmpty() {
				msg.Session.SendResponse(msg.ID, nil, &JSONRPCError{
					Code:    JSONRPCErrorInvalidRequest,
					Message: fmt.Sprintf("method %q is not allowed before the session is initialized", *msg.Method),
				})
			}
			return
		}
	}

	// Each message runs in its own goroutine to keep the input channel moving.
	go func(msg *Message) {
		handlerCtx, cancel := context.WithCancel(ctx)
		isRequest := msg.IsRequest()
		if isRequest {
			handlerCtx = WithRelatedRequestID(handlerCtx, msg.ID)
			msg.Session.TrackIncoming(msg.ID, cancel)
		}
		defer func() {
			if isRequest {
				msg.Session.UntrackIncoming(msg.ID)
			}
			cancel()
			if r := recover(); r != nil {
				logger.Error("Panic recovered during message processing", zap.Any("panic", r), zap.Any("msgId", msg.ID))
				if isRequest {
					msg.Session.SendResponse(msg.ID, nil, fmt.Errorf("internal server error during processing: %v", r))
				}
			}
		}()

		if msg.Method == nil {
			if !msg.Session.GetRequestManager().ProcessResponse(msg) {
				logger.Warn("Received response for unknown or timed-out request",
					zap.String("responseID", msg.ID.String()),
				)
			}
			return
		}

		handler := i.GetHandler(*msg.Method)
		response, err := handler(handlerCtx, msg)

		if isRequest {
			// A cancelled request still gets a terminal response so the
			// transport can close the stream it was routed to.
			if handlerCtx.Err() != nil && ctx.Err() == nil {
				logger.Debug("Answering cancelled request with an error",
					zap.String("messageID", msg.ID.String()),
					zap.String("method", *msg.Method),
				)
				msg.Session.SendResponse(msg.ID, nil, &JSONRPCError{
					Code:    JSONRPCErrorRequestCancelled,
					Message: "request cancelled",
				})
				return
			}
			msg.Session.SendResponse(msg.ID, response, err)
		} else if err != nil {
			logger.Error("Error handling notification", zap.String("method", *msg.Method), zap.Error(err))
		}
	}(msg)
}

// AddNotFoundHandle registers a handler for methods without a specific handler.
func (i *Input) AddNotFoundHandle(handler MessageHandler) {
	i.notFoundHandler.Store(handler)
	i.logger.Debug("Registered not-found handler")
}

// GetHandler retrieves the handler for a method, falling back to the
// not-found handler, and wraps it with the registered filters. Filters apply
// in registration order, so the last-registered filter runs outermost.
func (i *Input) GetHandler(method string) MessageHandler {
	var handler MessageHandler
	if h, exists := i.methodHandlers.Load(method); exists {
		handler = h.(MessageHandler)
	} else {
		handler = i.notFoundHandler.Load().(MessageHandler)
	}

	i.Mu.RLock()
	filters := make([]MessageFilter, len(i.filters))
	copy(filters, i.filters)
	i.Mu.RUnlock()

	for _, filter := range filters {
		handler = filter(handler)
	}
	return handler
}

// AddFilter registers message filters. Each filter receives the next handler
// in the chain and returns the wrapped one.
func (i *Input) AddFilter(filters ...MessageFilter) {
	i.Mu.Lock()
	defer i.Mu.Unlock()
	i.filters = append(i.filters, filters...)
}

// AddValidator adds custom message validators.
func (i *Input) AddValidator(validators ...MessageValidator) {
	i.Mu.Lock()
	defer i.Mu.Unlock()
	i.validators = append(i.validators, validators...)
}

// AddServerCapability narrows the accepted type so a client capability cannot
// be registered on a server by mistake.
func (i *Input) AddServerCapability(capabilities ...IServerCapability) {
	for _, capability := range capabilities {
		i.addCapability(capability.(ICapability))
	}
}

// AddClientCapability narrows the accepted type so a server capability cannot
// be registered on a client by mistake.
func (i *Input) AddClientCapability(capabilities ...IClientCapability) {
	for _, capability := range capabilities {
		i.addCapability(capability.(ICapability))
	}
}

func (i *Input) addCapability(capability ICapability) {
	i.capabilities = append(i.capabilities, capability)
	for method, handler := range capability.GetHandlers() {
		i.methodHandlers.Store(method, handler)
		i.logger.Debug("Registered handler from capability",
			zap.String("capability", fmt.Sprintf("%T", capability)),
			zap.String("method", method))
	}
}

func (i *Input) SetCapabilities(clientOrServerCapabilities any) {
	if clientCapabilities, ok := clientOrServerCapabilities.(*schema.ClientCapabilities); ok {
		for _, capability := range i.capabilities {
			if clientCapability, ok := capability.(IClientCapability); ok {
				clientCapability.SetCapabilities(clientCapabilities)
			} else {
				i.logger.Error("Capability does not implement IClientCapability",
					zap.String("capability", fmt.Sprintf("%T", capability)))
			}
		}
	} else if serverCapabilities, ok := clientOrServerCapabilities.(*schema.ServerCapabilities); ok {
		for _, capability := range i.capabilities {
			if serverCapability, ok := capability.(IServerCapability); ok {
				serverCapability.SetCapabilities(serverCapabilities)
			} else {
				i.logger.Error("Capability does not implement IServerCapability",
					zap.String("capability", fmt.Sprintf("%T", capability)))
			}
		}
	} else {
		i.logger.Error("clientOrServerCapabilities must be a *ClientCapabilities or *ServerCapabilities",
			zap.String("argument", fmt.Sprintf("%T", clientOrServerCapabilities)))
	}
}
