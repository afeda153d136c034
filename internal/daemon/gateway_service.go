package daemon

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/lenscast/lenscast/internal/server"
	transportgateway "github.com/lenscast/lenscast/internal/transport/gateway"
)

type gatewayService struct {
	gateway *transportgateway.Gateway
	info    *RuntimeInfo
}

func newGatewayService(api *server.APIServer, info *RuntimeInfo) *gatewayService {
	return &gatewayService{
		gateway: transportgateway.New(api),
		info:    info,
	}
}

func (s *gatewayService) Start(ctx context.Context) error {
	info, err := s.gateway.Start(ctx)
	if err != nil {
		return err
	}

	if s.info != nil && info.HTTP.Port > 0 {
		s.info.SetHTTPPort(info.HTTP.Port)
		log.Printf("Relay listening on %s://%s", info.HTTP.Scheme, info.HTTP.Address)
	}

	return nil
}

func (s *gatewayService) Shutdown(ctx context.Context) error {
	if err := s.gateway.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *gatewayService) Errors() <-chan error {
	return s.gateway.Errors()
}
