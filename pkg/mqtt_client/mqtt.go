package mqtt_client

import (
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
	"github.com/travigo/livemap/pkg/util"
)

const defaultBroker = "tcp://localhost:1883"
const connectTimeout = 10 * time.Second

var Client mqtt.Client

// Configured reports whether an MQTT broker has been set
func Configured() bool {
	return util.GetEnvironmentVariables()["TRAVIGO_MQTT_BROKER"] != ""
}

func Connect() error {
	env := util.GetEnvironmentVariables()

	broker := defaultBroker
	if env["TRAVIGO_MQTT_BROKER"] != "" {
		broker = env["TRAVIGO_MQTT_BROKER"]
	}

	clientID := env["TRAVIGO_MQTT_CLIENT_ID"]
	if clientID == "" {
		hostname, _ := os.Hostname()
		clientID = fmt.Sprintf("livemap-%s-%d", hostname, os.Getpid())
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetUsername(env["TRAVIGO_MQTT_USERNAME"])
	opts.SetPassword(env["TRAVIGO_MQTT_PASSWORD"])
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("timed out connecting to MQTT broker %s", broker)
	}
	if err := token.Error(); err != nil {
		return err
	}

	Client = client

	log.Info().Str("broker", broker).Msg("MQTT client connected")

	return nil
}

func Disconnect() {
	if Client == nil {
		return
	}

	Client.Disconnect(250)
	Client = nil
}
