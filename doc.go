// Package convo is the home of the convo language engine.
//
// Convo is a small language for conversational transcripts. A source
// document is a sequence of messages: plain role content, template
// messages with {{ }} embeds, function definitions the model may call,
// and top-level do, define and result blocks that run against a shared
// variable table. The engine lives in the sub-packages:
//
//   - dsl parses source, runs statement trees and suspends on pending values
//   - schema converts type values into validators and JSON Schema
//   - store persists shared-variable snapshots between runs
//   - llm holds the tool shapes used to advertise functions to a model
//
// # Quick Start
//
// Parse a document and run its top-level blocks:
//
//	res := dsl.Parse(src)
//	if err := res.Error(); err != nil {
//	    return err
//	}
//	c := dsl.NewContext()
//	v, err := c.Run(res.Messages)
//
// A value that is still pending comes back as a *dsl.Future:
//
//	if f, ok := v.(*dsl.Future); ok {
//	    v, err = f.Wait(ctx)
//	}
//
// # Configuration
//
// LoadConfig reads ~/.convo/config.yaml (CONVO_HOME overrides the
// directory). Missing files yield DefaultConfig. The config converts into
// parser and context options:
//
//	cfg, err := convo.LoadConfig(convo.DefaultConfigPath())
//	logger := convo.NewLogger(cfg.LogLevel, os.Stderr)
//	c := dsl.NewContext(cfg.ContextOptions(logger)...)
package convo
