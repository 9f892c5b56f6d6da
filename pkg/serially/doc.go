// Package serially detects which third-party Java libraries a remote JVM
// has on its classpath.
//
// For every jar in the catalog, serially allocates a zero-valued instance of
// one of the jar's serializable classes and encodes it with the Java object
// serialization protocol. In local mode the encodings are written to a CSV
// file for use with other tools. In remote mode each encoding is passed to
// the newClient method of a JMX connector server bound in an RMI registry;
// the exception the server answers with tells whether it could resolve the
// class.
//
// # Basic Usage
//
//	cfg := serially.Config{
//	    Mode:    serially.ModeRemote,
//	    Host:    "10.0.0.5",
//	    Port:    1099,
//	    JarDir:  "/home/me/.serially/jars",
//	    Catalog: "/home/me/.serially/java.sqlite",
//	}
//
//	s, err := serially.New(cfg, serially.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	summary, err := s.Run(ctx)
//
// # Catalog
//
// The catalog is an SQLite database listing jars and their classes. Use
// [Session.Index] to add the jars found in Config.JarDir, and [Session.Jars]
// to list what it holds.
//
// # Watching
//
// [Session.Start] runs registered plugins until [Session.Stop]. The
// plugins/jarwatcher plugin indexes jars as they are copied into the jar
// directory:
//
//	s, err := serially.New(cfg, jarwatcher.WithJarWatcher(jarwatcher.DefaultConfig()))
//	if err := s.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Stop()
package serially
