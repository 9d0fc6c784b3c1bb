// Package transport provides the built-in config.Transport implementations:
// a line-oriented stdio transport and an MQTT bus transport.
//
// The MQTT transport mirrors the topics of the robot deployment it replaces:
// speech recognition results arrive on the request topic (audio_asr) and
// replies are published to the response topic (llm_response).
package transport
