// # Voice Assistant Front End
//
// This repository provides the server and client pieces of a voice-assistant front end built on the LiveKit realtime platform. The HTTP API mints room-scoped access tokens and manages agent dispatches; the session package drives the client-side lifecycle (token, dispatch, room connection) and normalizes the inbound transcript stream for display. The realtime transport, audio codecs, and the conversational agent itself live behind the vendor SDK and are consumed as-is.
package voiceai
