// Package ade is a client for ADK agent servers: a realtime streaming link
// (text and audio over WebSocket) and the REST session API behind chat UIs.
package ade

import (
	"fmt"
	"log"

	"github.com/NoiseDigital/agent-development-environment/adk"
	"github.com/NoiseDigital/agent-development-environment/chat"
	"github.com/NoiseDigital/agent-development-environment/streaming"
)

// Client bundles the streaming link, its audio aggregator and the chat state.
type Client struct {
	config *Config

	Link       *streaming.Link
	Aggregator *streaming.Aggregator
	API        *adk.Client
	Chat       *chat.Chat
}

// New builds a Client from config. The link starts disconnected.
func New(config *Config) (*Client, error) {
	if config == nil {
		config = NewConfig()
	}

	link, err := streaming.NewLink(streaming.LinkOptions{
		Host:           config.Host,
		Secure:         config.Secure,
		UserID:         config.UserID,
		SwitchDelay:    config.SwitchDelay,
		ReconnectDelay: config.ReconnectDelay,
		Sink:           config.Sink,
		Store:          config.Store,
		Traces:         config.Traces,
		Logger:         componentLogger(config.Logger, "[LINK] "),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create link: %w", err)
	}

	agg := streaming.NewAggregator(link, config.FlushInterval)
	agg.SetLogger(componentLogger(config.Logger, "[AGG] "))

	api := adk.NewClient(config.Endpoints...).WithLogger(componentLogger(config.Logger, "[ADK] "))

	c := chat.New(api, link.UserID())
	c.SetLogger(componentLogger(config.Logger, fmt.Sprintf("[CHAT %s] ", link.UserID())))

	return &Client{
		config:     config,
		Link:       link,
		Aggregator: agg,
		API:        api,
		Chat:       c,
	}, nil
}

// componentLogger writes to base's output with the component's prefix.
// A nil base keeps each component's default logger.
func componentLogger(base *log.Logger, prefix string) *log.Logger {
	if base == nil {
		return nil
	}
	return log.New(base.Writer(), base.Prefix()+prefix, base.Flags())
}

// UserID returns the id used for both the link and the session API.
func (c *Client) UserID() string {
	return c.Link.UserID()
}

// StartAudio switches the link to audio mode.
func (c *Client) StartAudio() error {
	return c.Link.SetMode(streaming.ModeAudio)
}

// StopAudio flushes captured audio and switches back to text mode.
func (c *Client) StopAudio() error {
	c.Aggregator.Stop()
	return c.Link.SetMode(streaming.ModeText)
}

// PushAudio queues one captured PCM chunk.
func (c *Client) PushAudio(pcm []byte) {
	c.Aggregator.Push(pcm)
}

// Close flushes pending audio, closes the link and the store.
func (c *Client) Close() error {
	c.Aggregator.Stop()
	err := c.Link.Close()
	if c.config.Store != nil {
		if cerr := c.config.Store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
