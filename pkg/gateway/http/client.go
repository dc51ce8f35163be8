package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/wmu-sunseeker/gobps/pkg/controller"
	"github.com/wmu-sunseeker/gobps/pkg/gateway"
)

type GatewayClient struct {
	http.Client
	logger            *log.Entry
	baseURL           string
	apiVersion        string
	currentSequenceNb int
}

func NewGatewayClient(baseURL string, apiVersion string) *GatewayClient {
	return &GatewayClient{
		logger:     log.WithField("component", "gateway-client"),
		Client:     http.Client{},
		baseURL:    baseURL,
		apiVersion: apiVersion,
	}
}

// HTTP request to the gateway
// Does error checking : http related errors, json decode errors
// or actual gateway errors
func (client *GatewayClient) Do(method string, uri string, body io.Reader, response GatewayResponse) error {
	client.currentSequenceNb += 1
	baseUri := client.baseURL + API_PREFIX + fmt.Sprintf("/%s/%d", client.apiVersion, client.currentSequenceNb)
	req, err := http.NewRequest(method, baseUri+uri, body)
	if err != nil {
		client.logger.Errorf("[GATEWAY] failed to create request : %v", err)
		return err
	}
	httpResp, err := client.Client.Do(req)
	if err != nil {
		client.logger.Errorf("[GATEWAY] failed request : %v", err)
		return err
	}
	defer httpResp.Body.Close()
	err = json.NewDecoder(httpResp.Body).Decode(response)
	if err != nil {
		client.logger.Errorf("[GATEWAY] failed to decode response : %v", err)
		return err
	}
	err = response.GetError()
	if err != nil {
		return err
	}
	sequence := response.GetSequenceNb()
	if client.currentSequenceNb != sequence {
		return fmt.Errorf("error in sequence number, got %v expected %v", sequence, client.currentSequenceNb)
	}
	return nil
}

func (client *GatewayClient) Status() (controller.Snapshot, error) {
	resp := new(StatusResponse)
	err := client.Do(http.MethodGet, "/status", nil, resp)
	return resp.Status, err
}

func (client *GatewayClient) Faults() ([]controller.FaultEvent, error) {
	resp := new(FaultsResponse)
	err := client.Do(http.MethodGet, "/faults", nil, resp)
	return resp.Faults, err
}

func (client *GatewayClient) Reset() error {
	return client.Do(http.MethodPost, "/reset", nil, new(GatewayResponseBase))
}

func (client *GatewayClient) Charge() error {
	return client.Do(http.MethodPost, "/charge", nil, new(GatewayResponseBase))
}

// Read gateway version
func (client *GatewayClient) GetVersion() (*gateway.GatewayVersion, error) {
	versionInfo := new(VersionInfo)
	err := client.Do(http.MethodGet, "/info/version", nil, versionInfo)
	return versionInfo.GatewayVersion, err
}
